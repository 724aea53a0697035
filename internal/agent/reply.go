package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ashureev/foundersync/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a request body or record against its validate tags and
// returns the JSON names of the failing fields.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fmt.Errorf("missing or invalid fields: %s", strings.Join(fields, ", "))
}

// stripFences removes one leading ```json or ``` marker and one trailing ``` marker.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(s, "```json"); ok {
		s = rest
	} else if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = rest
	}
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutSuffix(s, "```"); ok {
		s = rest
	}
	return strings.TrimSpace(s)
}

var replyFields = []string{"message", "tone", "emotion"}

// ParseReply turns raw model text into a reply that satisfies the contract.
func ParseReply(raw string) (domain.AgentReply, error) {
	cleaned := stripFences(raw)

	var decoded any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return domain.AgentReply{}, &ResponseParseError{Text: cleaned, Err: err}
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		return domain.AgentReply{}, &ResponseShapeError{Reason: "expected a JSON object"}
	}

	var wrongType []string
	values := make(map[string]string, len(replyFields))
	for _, field := range replyFields {
		v, present := obj[field]
		if !present || v == nil {
			continue
		}
		s, isString := v.(string)
		if !isString {
			wrongType = append(wrongType, field)
			continue
		}
		values[field] = s
	}
	if len(wrongType) > 0 {
		return domain.AgentReply{}, &ResponseShapeError{Fields: wrongType, Reason: "fields must be strings"}
	}

	reply := domain.AgentReply{
		Message: values["message"],
		Tone:    values["tone"],
		Emotion: values["emotion"],
	}
	if err := validate.Struct(reply); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return domain.AgentReply{}, &ResponseShapeError{Reason: err.Error()}
		}
		missing := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			missing = append(missing, fe.Field())
		}
		return domain.AgentReply{}, &ResponseShapeError{Fields: missing, Reason: "missing required fields"}
	}
	return reply, nil
}

// FallbackReply is the deterministic stand-in for a reply that could not be generated.
func FallbackReply(role Role, err error) domain.AgentReply {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return domain.AgentReply{
		Message: fmt.Sprintf("%s perspective unavailable: %s", role.Token(), reason),
		Tone:    "professional",
		Emotion: "neutral",
	}
}
