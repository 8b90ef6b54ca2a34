package composition

// documentSchema validates the outer shape of a composition document. Node
// contents are checked structurally by the builder, which produces richer
// errors than a schema can.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["apiVersion", "kind", "metadata", "composition"],
  "properties": {
    "apiVersion": {"type": "string", "const": "composer/v1"},
    "kind": {"type": "string", "const": "Composition"},
    "metadata": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "description": {"type": "string"}
      }
    },
    "composition": {
      "type": "array",
      "items": {
        "anyOf": [
          {"type": "object", "minProperties": 1},
          {"type": "string"},
          {"type": "array"}
        ]
      }
    }
  }
}`
