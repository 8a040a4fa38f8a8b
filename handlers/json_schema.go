package handlers

import (
	"github.com/livepeer/video-ingest/errors"
	"github.com/xeipuuv/gojsonschema"
)

const submitRemoteRequestSchemaDefinition = `{
	"type": "object",
	"properties": {
		"url": { "type": "string", "minLength": 1 },
		"transcode": {
			"type": "object",
			"properties": {
				"crf": { "type": "integer", "minimum": 0 },
				"cpu_used": { "type": "integer", "minimum": 0 }
			}
		}
	},
	"required": [ "url" ]
}`

var inputSchemas = map[string]string{
	"SubmitRemote": submitRemoteRequestSchemaDefinition,
}

var inputSchemasCompiled = compileJSONSchemas()

func compileJSONSchemas() map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema, len(inputSchemas))
	for name, text := range inputSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(text))
		if err != nil {
			panic(err) // fix schema text
		}
		compiled[name] = schema
	}
	return compiled
}

func validateAgainstSchema(name string, payload []byte) error {
	schema, ok := inputSchemasCompiled[name]
	if !ok {
		panic("unknown request schema " + name)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return errors.WrapValidation(err, "validating request payload")
	}
	if !result.Valid() {
		return errors.Validationf("invalid request payload: %s", result.Errors())
	}
	return nil
}
