// Package bundle turns raw generator output into a schema-valid
// ChapterBundle. Validation reports field-scoped issues instead of a single
// verdict so that repair can replace only the failing fields.
package bundle

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"moontale/internal/models"
)

// IssueKind names the constraint a field violated.
type IssueKind string

const (
	IssueMissing     IssueKind = "missing"
	IssueWrongType   IssueKind = "wrong_type"
	IssueWrongLength IssueKind = "wrong_length"
	IssueCardinality IssueKind = "cardinality"
)

// Issue is one violated field constraint.
type Issue struct {
	Field  string
	Kind   IssueKind
	Detail string
}

func (i Issue) String() string {
	if i.Detail == "" {
		return fmt.Sprintf("%s: %s", i.Field, i.Kind)
	}
	return fmt.Sprintf("%s: %s (%s)", i.Field, i.Kind, i.Detail)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ExtractJSON returns the first balanced JSON object substring of raw. It
// tolerates a generator that wraps the object in prose. The second return is
// false when no balanced object exists.
func ExtractJSON(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// Validate parses raw generator output and checks it against the bundle
// schema. The returned bundle holds whatever could be decoded, field by
// field; the issue list names every constraint violation. A nil issue list
// means the bundle is schema-valid.
//
// Parse failures never surface as errors: an unparseable response is
// reported as every field missing, which routes the whole bundle through
// repair.
func Validate(raw string) (*models.ChapterBundle, []Issue) {
	parsed := &models.ChapterBundle{}

	text, ok := ExtractJSON(raw)
	if !ok {
		return parsed, allFieldsMissing("no JSON object in response")
	}

	// Decode field by field so a single wrong-typed field does not discard
	// the rest of the response.
	var loose map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &loose); err != nil {
		return parsed, allFieldsMissing(err.Error())
	}

	var typeIssues []Issue
	decodeField(loose, "event_keywords", &parsed.EventKeywords, &typeIssues)
	decodeField(loose, "title", &parsed.Title, &typeIssues)
	decodeField(loose, "chapter", &parsed.Chapter, &typeIssues)
	decodeField(loose, "next_story_state_summary", &parsed.NextSummary, &typeIssues)
	decodeField(loose, "anchors", &parsed.Anchors, &typeIssues)
	decodeField(loose, "tomorrow_suggestions", &parsed.Suggestions, &typeIssues)

	trimBundle(parsed)

	issues := typeIssues
	if err := validate.Struct(parsed); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			issues = append(issues, translate(verrs)...)
		} else {
			issues = append(issues, Issue{Field: "bundle", Kind: IssueWrongType, Detail: err.Error()})
		}
	}

	// Keyword entries are bounded to 12 runes each; the struct tags cannot
	// express rune counting.
	for i, kw := range parsed.EventKeywords {
		if len([]rune(kw)) > maxKeywordRunes {
			issues = append(issues, Issue{
				Field:  fmt.Sprintf("event_keywords[%d]", i),
				Kind:   IssueWrongLength,
				Detail: fmt.Sprintf("keyword longer than %d chars", maxKeywordRunes),
			})
		}
	}

	return parsed, issues
}

const maxKeywordRunes = 12

func decodeField(loose map[string]json.RawMessage, name string, dst interface{}, issues *[]Issue) {
	raw, ok := loose[name]
	if !ok {
		// Presence is reported by the struct validator's required tags.
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		*issues = append(*issues, Issue{Field: name, Kind: IssueWrongType, Detail: err.Error()})
	}
}

func trimBundle(b *models.ChapterBundle) {
	for i := range b.EventKeywords {
		b.EventKeywords[i] = strings.TrimSpace(b.EventKeywords[i])
	}
	b.Title = strings.TrimSpace(b.Title)
	b.Chapter = strings.TrimSpace(b.Chapter)
	b.NextSummary = strings.TrimSpace(b.NextSummary)
	b.Anchors.A = strings.TrimSpace(b.Anchors.A)
	b.Anchors.B = strings.TrimSpace(b.Anchors.B)
	b.Anchors.C = strings.TrimSpace(b.Anchors.C)
	for i := range b.Suggestions {
		b.Suggestions[i].Text = strings.TrimSpace(b.Suggestions[i].Text)
	}
}

func translate(verrs validator.ValidationErrors) []Issue {
	issues := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "ChapterBundle.")

		var kind IssueKind
		switch fe.Tag() {
		case "required":
			kind = IssueMissing
		case "len":
			kind = IssueCardinality
		case "min", "max":
			if fe.Kind() == reflect.Slice {
				kind = IssueCardinality
			} else {
				kind = IssueWrongLength
			}
		case "oneof":
			kind = IssueWrongType
		default:
			kind = IssueWrongType
		}

		issues = append(issues, Issue{
			Field:  field,
			Kind:   kind,
			Detail: fe.Tag(),
		})
	}
	return issues
}

func allFieldsMissing(detail string) []Issue {
	fields := []string{
		"event_keywords", "title", "chapter",
		"next_story_state_summary", "anchors", "tomorrow_suggestions",
	}
	issues := make([]Issue, 0, len(fields))
	for _, f := range fields {
		issues = append(issues, Issue{Field: f, Kind: IssueMissing, Detail: detail})
	}
	return issues
}

// HasIssue reports whether any issue targets the given field or one of its
// children.
func HasIssue(issues []Issue, field string) bool {
	for _, i := range issues {
		if i.Field == field || strings.HasPrefix(i.Field, field+".") || strings.HasPrefix(i.Field, field+"[") {
			return true
		}
	}
	return false
}
