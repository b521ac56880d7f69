package dbstrings

import "testing"

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"User", "user"},
		{"UserID", "user_id"},
		{"CreatedAt", "created_at"},
		{"GetUserByEmail", "get_user_by_email"},
		{"HTTPStatus", "http_status"},
		{"", ""},
		{"a", "a"},
		{"ABC", "abc"},
		{"userEmail", "user_email"},
		{"user_id", "user_id"},
		{"Address2Line", "address2_line"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToSnakeCase(tt.input)
			if result != tt.expected {
				t.Errorf("ToSnakeCase(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToSingular(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"users", "user"},
		{"categories", "category"},
		{"addresses", "address"},
		{"boxes", "box"},
		{"churches", "church"},
		{"bushes", "bush"},
		{"quizzes", "quiz"},
		{"buzzes", "buzz"},
		{"children", "child"},
		{"people", "person"},
		{"mice", "mouse"},
		{"indices", "index"},
		{"user", "user"},
		{"address", "address"},
		{"", ""},
		{"s", "s"},
		{"order_items", "order_item"},
		{"user_addresses", "user_address"},
		{"Children", "Child"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToSingular(tt.input)
			if result != tt.expected {
				t.Errorf("ToSingular(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToPlural(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"user", "users"},
		{"category", "categories"},
		{"address", "addresses"},
		{"box", "boxes"},
		{"church", "churches"},
		{"child", "children"},
		{"person", "people"},
		{"day", "days"},
		{"key", "keys"},
		{"index", "indices"},
		{"", "s"},
		{"order_item", "order_items"},
		{"Person", "People"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToPlural(tt.input)
			if result != tt.expected {
				t.Errorf("ToPlural(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestForeignKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"users", "user_id"},
		{"categories", "category_id"},
		{"order_items", "order_item_id"},
		{"OrderItems", "order_item_id"},
		{"people", "person_id"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ForeignKey(tt.input)
			if result != tt.expected {
				t.Errorf("ForeignKey(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestJoinTable(t *testing.T) {
	if got := JoinTable("users", "roles"); got != "roles_users" {
		t.Errorf("JoinTable(users, roles) = %q, want roles_users", got)
	}
	if got := JoinTable("roles", "users"); got != "roles_users" {
		t.Errorf("JoinTable(roles, users) = %q, want roles_users", got)
	}
}
