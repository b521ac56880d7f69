package compile

import (
	"fmt"
	"regexp"
)

// functionRegex matches function names, optionally schema qualified.
// Function names are emitted unquoted so that built-ins resolve.
var functionRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

func validateFunction(name string) error {
	if !functionRegex.MatchString(name) {
		return fmt.Errorf("function name %q: %w", name, ErrInvalidIdentifier)
	}
	return nil
}

var comparisonOps = map[string]bool{
	"=": true, "<>": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"@>": true, "<@": true, "&&": true, "IS DISTINCT FROM": true, "IS NOT DISTINCT FROM": true,
	"LIKE": true, "ILIKE": true,
}

func validateComparison(op string) error {
	if !comparisonOps[op] {
		return fmt.Errorf("comparison %q: %w", op, ErrUnknownOperator)
	}
	return nil
}

var arithmeticOps = map[string]bool{"+": true, "-": true, "*": true, "/": true, "%": true, "||": true}

func validateArithmetic(op string) error {
	if !arithmeticOps[op] {
		return fmt.Errorf("assignment operator %q: %w", op, ErrUnknownOperator)
	}
	return nil
}
