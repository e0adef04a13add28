package cli

import (
	"regexp"
)

var redactions = []struct {
	pattern *regexp.Regexp
	replace string
}{
	// PEM blocks pasted into config values or echoed by parsers
	{regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[^-]*-----END [A-Z ]*PRIVATE KEY-----`), "[PRIVATE KEY REDACTED]"},
	{regexp.MustCompile(`-----BEGIN CERTIFICATE-----[^-]*-----END CERTIFICATE-----`), "[CERTIFICATE REDACTED]"},

	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`Authorization:\s*[^\s]+`), "Authorization: [REDACTED]"},
	{regexp.MustCompile(`[Pp]assword[\s:=]+[^\s]+`), "password=[REDACTED]"},

	// Home directories in file paths
	{regexp.MustCompile(`/home/[^/\s]+`), "/home/[USER]"},
	{regexp.MustCompile(`/Users/[^/\s]+`), "/Users/[USER]"},
}

// redactSensitiveInfo masks secrets and user names in text printed to the
// terminal.
func redactSensitiveInfo(message string) string {
	result := message
	for _, r := range redactions {
		result = r.pattern.ReplaceAllString(result, r.replace)
	}
	return result
}

// RedactError returns err's message with sensitive content masked.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return redactSensitiveInfo(err.Error())
}
