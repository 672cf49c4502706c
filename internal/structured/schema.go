package structured

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/openrouter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer formats schema violation messages.
var printer = message.NewPrinter(language.English)

var (
	scoredSchema  = mustCompileSchema(openrouter.ScoredResultSchema(), "scored_result.json")
	commentSchema = mustCompileSchema(openrouter.CommentResultSchema(), "comment_result.json")
)

func mustCompileSchema(schemaMap map[string]any, name string) *jsonschema.Schema {
	// Round-trip through JSON so the compiler sees plain decoded values.
	raw, err := json.Marshal(schemaMap)
	if err != nil {
		panic(fmt.Sprintf("failed to serialize %s: %v", name, err))
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		panic(fmt.Sprintf("failed to parse %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// NotJSONMessage is the single violation reported for output with no JSON object in it.
const NotJSONMessage = "response is not a JSON object"

// Violations checks raw model output for mode against its response schema.
// Plain mode always conforms.
func Violations(mode models.Mode, content string) []string {
	if mode != models.ModeScorer && mode != models.ModeCommenter {
		return nil
	}
	obj, ok := ExtractJSON(content)
	if !ok {
		return []string{NotJSONMessage}
	}
	return Conforms(mode, obj)
}

// Conforms validates obj against the response schema for mode and returns
// one message per violation. Plain mode has no schema and always conforms.
func Conforms(mode models.Mode, obj map[string]any) []string {
	var sch *jsonschema.Schema
	switch mode {
	case models.ModeScorer:
		sch = scoredSchema
	case models.ModeCommenter:
		sch = commentSchema
	default:
		return nil
	}

	// jsonschema expects values as produced by encoding/json.
	raw, err := json.Marshal(obj)
	if err != nil {
		return []string{err.Error()}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return []string{err.Error()}
	}

	err = sch.Validate(v)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(printer)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}
