package provider

import "regexp"

// errorRule maps one provider failure to a user-facing message. Rules are
// evaluated in order: exact code match first, then pattern match over the raw
// explanation. The first hit wins.
type errorRule struct {
	code    string         // exact result code, empty for pattern rules
	pattern *regexp.Regexp // matched against the explanation, nil for code rules
	message string
}

// GenericProviderError is returned when no rule matches.
const GenericProviderError = "The provider rejected the document. Please contact support with the document id."

// errorRules is ordered, versioned data. Operators extend it by appending
// rules; call sites never branch on individual codes.
var errorRules = []errorRule{
	{code: "101", message: "The document failed schema validation. Check the document content and resubmit."},
	{code: "102", message: "The recipient alias is not registered for electronic documents."},
	{code: "103", message: "A document with this id was already submitted to the provider."},
	{code: "104", message: "The provider account has insufficient submission quota."},
	{code: "105", message: "The document id format is not accepted by the provider."},
	{code: "500", message: "The provider reported an internal error. The submission will be retried."},
	{pattern: regexp.MustCompile(`(?i)schema|xsd|invalid xml`), message: "The document failed schema validation. Check the document content and resubmit."},
	{pattern: regexp.MustCompile(`(?i)alias|urn|not registered`), message: "The recipient alias is not registered for electronic documents."},
	{pattern: regexp.MustCompile(`(?i)duplicate|already exist`), message: "A document with this id was already submitted to the provider."},
	{pattern: regexp.MustCompile(`(?i)quota|limit exceed`), message: "The provider account has insufficient submission quota."},
	{pattern: regexp.MustCompile(`(?i)timeout|unavailable|temporar`), message: "The provider is temporarily unavailable. The submission will be retried."},
}

// MapProviderError resolves a failed send result to a user-facing message.
func MapProviderError(code, explanation string) string {
	for _, r := range errorRules {
		if r.code != "" && r.code == code {
			return r.message
		}
		if r.pattern != nil && r.pattern.MatchString(explanation) {
			return r.message
		}
	}
	return GenericProviderError
}
