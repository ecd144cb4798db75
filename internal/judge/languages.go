package judge

import "strings"

var languageIDs = map[string]int{
	"PYTHON":     71,
	"JAVA":       62,
	"JAVASCRIPT": 63,
	"TYPESCRIPT": 74,
}

var languageNames = map[int]string{
	71: "Python",
	62: "Java",
	63: "JavaScript",
	74: "TypeScript",
}

// LanguageCount is the number of supported languages.
func LanguageCount() int {
	return len(languageIDs)
}

// LanguageID maps a language key such as "PYTHON" to its judge identifier.
func LanguageID(language string) (int, bool) {
	id, ok := languageIDs[strings.ToUpper(strings.TrimSpace(language))]
	return id, ok
}

// LanguageName returns the display name for a judge language identifier.
func LanguageName(id int) string {
	if name, ok := languageNames[id]; ok {
		return name
	}
	return "Unknown"
}
