package tools

// JSON Schema 片段构造函数，供各工具的 Parameters 使用

func object(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func enum(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "minimum": 0, "description": desc}
}

func boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func array(desc string, items map[string]any) map[string]any {
	return map[string]any{"type": "array", "description": desc, "items": items}
}

func operation(values ...string) map[string]any {
	if len(values) == 0 {
		values = []string{"Add", "Remove", "Modify"}
	}
	return enum("Update operation, case-sensitive.", values...)
}

func characterName() map[string]any {
	return str("Exact name of the character in the roster.")
}

func namedRating() map[string]any {
	return object(map[string]any{
		"name":   str("Skill name."),
		"rating": integer("Skill rating."),
	}, "name", "rating")
}

func itemSchema() map[string]any {
	return object(map[string]any{
		"name":        str("Item name, used as the inventory key."),
		"quantity":    integer("Number of items, defaults to 1."),
		"description": str("Short description."),
	}, "name")
}

func contactSchema() map[string]any {
	return object(map[string]any{
		"name":        str("Contact name, used as the key."),
		"description": str("Who they are."),
		"loyalty":     integer("Loyalty rating 1-6."),
		"connection":  integer("Connection rating 1-12."),
	}, "name", "loyalty", "connection")
}

func qualitySchema() map[string]any {
	return object(map[string]any{
		"name":     str("Quality name."),
		"positive": boolean("true for a positive quality, false for a negative one."),
	}, "name", "positive")
}
