package schema

// ArtifactSchema is the structural contract for the compiled gateway
// artifact at the current schema version. Artifacts produced under older
// versions must be migrated before they validate against it.
const ArtifactSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "compiled gateway artifact",
  "type": "object",
  "required": ["schema_version", "generated_at", "generator", "model_list", "router_settings"],
  "additionalProperties": false,
  "properties": {
    "schema_version": {"type": "string", "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+$"},
    "generated_at": {"type": "string", "minLength": 1},
    "generator": {
      "type": "object",
      "required": ["name", "version"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "version": {"type": "string", "minLength": 1}
      }
    },
    "source_digest": {"type": "string"},
    "content_digest": {"type": "string"},
    "model_list": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["model_name", "backend_model", "provider_id", "provider_type", "base_url"],
        "additionalProperties": false,
        "properties": {
          "model_name": {"type": "string", "minLength": 1},
          "backend_model": {"type": "string", "minLength": 1},
          "provider_id": {"type": "string", "minLength": 1},
          "provider_type": {"type": "string", "minLength": 1},
          "base_url": {"type": "string", "minLength": 1},
          "capabilities": {
            "type": "array",
            "items": {"type": "string", "minLength": 1}
          },
          "context_length": {"type": "integer", "minimum": 1}
        }
      }
    },
    "router_settings": {
      "type": "object",
      "required": ["default_strategy", "fallbacks", "aliases", "strategy"],
      "additionalProperties": false,
      "properties": {
        "default_provider": {"type": "string"},
        "default_strategy": {"type": "string", "minLength": 1},
        "fallbacks": {
          "type": "object",
          "additionalProperties": {
            "type": "array",
            "items": {"type": "string", "minLength": 1}
          }
        },
        "aliases": {
          "type": "object",
          "additionalProperties": {"type": "string", "minLength": 1}
        },
        "strategy": {
          "type": "object",
          "additionalProperties": {"type": "string", "minLength": 1}
        },
        "weights": {
          "type": "object",
          "additionalProperties": {
            "type": "object",
            "additionalProperties": {"type": "integer", "minimum": 1}
          }
        }
      }
    }
  }
}`
