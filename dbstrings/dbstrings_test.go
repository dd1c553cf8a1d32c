package dbstrings

import "testing"

func TestToPascalCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"user", "User"},
		{"user_id", "UserId"},
		{"created_at", "CreatedAt"},
		{"id", "Id"},
		{"", ""},
		{"a", "A"},
		{"user_email_address", "UserEmailAddress"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToPascalCase(tt.input)
			if result != tt.expected {
				t.Errorf("ToPascalCase(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"User", "user"},
		{"UserID", "user_id"},
		{"CreatedAt", "created_at"},
		{"HTTPServer", "http_server"},
		{"GetUserByEmail", "get_user_by_email"},
		{"", ""},
		{"a", "a"},
		{"ID", "id"},
		{"userEmail", "user_email"},
		{"already_snake", "already_snake"},
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

func TestToTableName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"User", "users"},
		{"OrderItem", "order_items"},
		{"Category", "categories"},
		{"Address", "addresses"},
		{"Person", "people"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToTableName(tt.input)
			if result != tt.expected {
				t.Errorf("ToTableName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToTypeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"users", "User"},
		{"order_items", "OrderItem"},
		{"categories", "Category"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToTypeName(tt.input)
			if result != tt.expected {
				t.Errorf("ToTypeName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
