package schema

// RoutingDocSchema is the structural contract for the routing rules
// document. Regex compilability and referential checks run later.
const RoutingDocSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "routing rules document",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "default_provider": {"type": "string", "minLength": 1},
    "exact_matches": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["model_name", "provider_id"],
        "additionalProperties": false,
        "properties": {
          "model_name": {"type": "string", "minLength": 1},
          "provider_id": {"type": "string", "minLength": 1},
          "backend_model": {"type": "string", "minLength": 1}
        }
      }
    },
    "pattern_matches": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["regex", "provider_id"],
        "additionalProperties": false,
        "properties": {
          "regex": {"type": "string", "minLength": 1},
          "provider_id": {"type": "string", "minLength": 1}
        }
      }
    },
    "capability_preferences": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["capability", "ordered_model_list"],
        "additionalProperties": false,
        "properties": {
          "capability": {"type": "string", "minLength": 1},
          "ordered_model_list": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          }
        }
      }
    },
    "load_balance_groups": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["model_name", "strategy", "members"],
        "additionalProperties": false,
        "properties": {
          "model_name": {"type": "string", "minLength": 1},
          "strategy": {"enum": ["round-robin", "weighted", "least-latency"]},
          "members": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["provider_id"],
              "additionalProperties": false,
              "properties": {
                "provider_id": {"type": "string", "minLength": 1},
                "weight": {"type": "integer", "minimum": 1}
              }
            }
          }
        }
      }
    },
    "fallback_chains": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["model_name", "ordered_targets"],
        "additionalProperties": false,
        "properties": {
          "model_name": {"type": "string", "minLength": 1},
          "ordered_targets": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          }
        }
      }
    }
  }
}`
