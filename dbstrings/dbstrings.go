// Package dbstrings derives database names from table and field names:
// singular and plural table names, snake_case columns, and the default
// keys and join tables relations use when none are given.
package dbstrings

import (
	"sort"
	"strings"
	"unicode"
)

var singulars = map[string]string{
	"children": "child",
	"people":   "person",
	"men":      "man",
	"women":    "woman",
	"teeth":    "tooth",
	"feet":     "foot",
	"geese":    "goose",
	"mice":     "mouse",
	"indices":  "index",
	"matrices": "matrix",
	"vertices": "vertex",
	"quizzes":  "quiz",
}

var plurals = func() map[string]string {
	m := make(map[string]string, len(singulars))
	for plural, singular := range singulars {
		m[singular] = plural
	}
	return m
}()

// ToSnakeCase converts a PascalCase or camelCase name to snake_case.
// Runs of capitals are treated as one word.
//
//	"UserID" -> "user_id"
//	"CreatedAt" -> "created_at"
//	"HTTPStatus" -> "http_status"
func ToSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prev != '_' && (unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower)) {
					b.WriteRune('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToSingular converts a plural English word to its singular form. Only
// the last word of a snake_case name is changed.
//
//	"users" -> "user"
//	"categories" -> "category"
//	"order_addresses" -> "order_address"
func ToSingular(s string) string {
	prefix, word := splitLast(s)
	return prefix + singular(word)
}

// ToPlural converts a singular English word to its plural form. Only the
// last word of a snake_case name is changed.
//
//	"user" -> "users"
//	"category" -> "categories"
//	"order_item" -> "order_items"
func ToPlural(s string) string {
	prefix, word := splitLast(s)
	return prefix + plural(word)
}

// ForeignKey is the default column referencing table's primary key.
//
//	"users" -> "user_id"
//	"OrderItems" -> "order_item_id"
func ForeignKey(table string) string {
	return ToSingular(ToSnakeCase(table)) + "_id"
}

// JoinTable is the default many-to-many join table of two tables: both
// names in alphabetical order.
//
//	("users", "roles") -> "roles_users"
func JoinTable(a, b string) string {
	names := []string{ToSnakeCase(a), ToSnakeCase(b)}
	sort.Strings(names)
	return names[0] + "_" + names[1]
}

func splitLast(s string) (string, string) {
	i := strings.LastIndexByte(s, '_')
	if i < 0 {
		return "", s
	}
	return s[:i+1], s[i+1:]
}

func singular(s string) string {
	if w, ok := singulars[strings.ToLower(s)]; ok {
		return matchCase(s, w)
	}
	switch {
	case strings.HasSuffix(s, "ies") && len(s) > 3:
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "zzes") && len(s) > 4:
		return s[:len(s)-2]
	case strings.HasSuffix(s, "sses"), strings.HasSuffix(s, "xes"),
		strings.HasSuffix(s, "ches"), strings.HasSuffix(s, "shes"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "ss"):
		return s
	case strings.HasSuffix(s, "s") && len(s) > 1:
		return s[:len(s)-1]
	}
	return s
}

func plural(s string) string {
	if w, ok := plurals[strings.ToLower(s)]; ok {
		return matchCase(s, w)
	}
	if strings.HasSuffix(s, "y") && len(s) > 1 && !strings.ContainsRune("aeiou", rune(s[len(s)-2])) {
		return s[:len(s)-1] + "ies"
	}
	if strings.HasSuffix(s, "s") || strings.HasSuffix(s, "x") ||
		strings.HasSuffix(s, "ch") || strings.HasSuffix(s, "sh") {
		return s + "es"
	}
	return s + "s"
}

// matchCase capitalizes w when original is capitalized.
func matchCase(original, w string) string {
	if original != "" && unicode.IsUpper(rune(original[0])) {
		return strings.ToUpper(w[:1]) + w[1:]
	}
	return w
}
