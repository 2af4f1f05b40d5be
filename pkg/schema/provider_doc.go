package schema

// ProviderDocSchema is the structural contract for the provider registry
// document. Cross-entity constraints (id uniqueness, exclusive-resource
// activation) are enforced by typed checks after this pass.
const ProviderDocSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "provider registry document",
  "type": "object",
  "required": ["providers"],
  "additionalProperties": false,
  "properties": {
    "providers": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "type", "base_url", "status"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"enum": ["exclusive-gpu", "local-cpu", "remote-api"]},
          "base_url": {"type": "string", "minLength": 1},
          "status": {"enum": ["active", "inactive", "deprecated"]},
          "health_endpoint": {"type": "string"},
          "models": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name"],
              "additionalProperties": false,
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "backend_model": {"type": "string", "minLength": 1},
                "capabilities": {
                  "type": "array",
                  "items": {"type": "string", "minLength": 1},
                  "uniqueItems": true
                },
                "context_length": {"type": "integer", "minimum": 1}
              }
            }
          }
        }
      }
    }
  }
}`
