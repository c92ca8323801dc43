package leveling

import (
	"strconv"
	"strings"
)

// TemplateVars are the values substituted into level-up messages.
type TemplateVars struct {
	UserMention string // {user}
	Username    string // {username}
	Level       int    // {level}
	RoleName    string // {rolename}
}

// FormatTemplate substitutes the known placeholders verbatim. Unknown
// placeholders are left untouched.
func FormatTemplate(tmpl string, v TemplateVars) string {
	r := strings.NewReplacer(
		"{user}", v.UserMention,
		"{username}", v.Username,
		"{level}", strconv.Itoa(v.Level),
		"{rolename}", v.RoleName,
	)
	return r.Replace(tmpl)
}
