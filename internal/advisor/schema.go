package advisor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// 建议对象的结构契约。动作动词在引擎侧再按 capabilities 过滤，
// 这里只卡结构与取值范围。
const suggestionSchemaJSON = `{
  "type": "object",
  "required": ["action", "subject"],
  "properties": {
    "action":      {"type": "string", "minLength": 1},
    "subject":     {"type": "string", "minLength": 1},
    "alternative": {"type": "string"},
    "rationale":   {"type": "string"},
    "confidence":  {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var suggestionSchema = mustCompileSchema(suggestionSchemaJSON)

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("suggestion.json", strings.NewReader(raw)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("suggestion.json")
}

// validateSuggestions 逐条校验，任何一条不合格整个响应按不可用处理。
func validateSuggestions(suggestions []Suggestion) error {
	for i, s := range suggestions {
		raw, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("%w: 建议#%d 序列化失败: %v", ErrAdvisor, i+1, err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("%w: 建议#%d: %v", ErrAdvisor, i+1, err)
		}
		if err := suggestionSchema.Validate(doc); err != nil {
			return fmt.Errorf("%w: 建议#%d 不符合契约: %v", ErrAdvisor, i+1, err)
		}
	}
	return nil
}
