package harvester

import (
	"fmt"
	"strings"

	"github.com/airbusgeo/wcs-remote-service/common"
	"github.com/xeipuuv/gojsonschema"
)

// Config is the type-specific configuration of a WCS harvester
type Config struct {
	// DatasetTitleFilter keeps only the coverages whose title contains it (case-insensitive)
	DatasetTitleFilter string
	// TopicCategories overrides the categories a keyword can match
	TopicCategories []string
}

const extraConfigSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"$id": "https://geonode.org/harvesting/wcs-harvester.schema.json",
	"title": "OGC WCS harvester config",
	"description": "A jsonschema for validating configuration option for the remote OGC WCS harvester",
	"type": "object",
	"properties": {
		"dataset_title_filter": {
			"type": "string"
		},
		"topic_categories": {
			"type": "array",
			"items": {"type": "string"}
		}
	},
	"additionalProperties": false
}`

var schemaLoader = gojsonschema.NewStringLoader(extraConfigSchema)

// ExtraConfigSchema returns the json schema of the type-specific configuration
func ExtraConfigSchema() string {
	return extraConfigSchema
}

// ErrInvalidConfig is returned when the type-specific configuration does not validate the schema
type ErrInvalidConfig struct {
	Errors []string
}

func (e ErrInvalidConfig) Error() string {
	return "invalid WCS harvester configuration: " + strings.Join(e.Errors, ", ")
}

// ParseConfig validates the type-specific configuration of a harvester record and parses it
func ParseConfig(config map[string]interface{}) (Config, error) {
	if config == nil {
		config = map[string]interface{}{}
	}
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(config))
	if err != nil {
		return Config{}, fmt.Errorf("ParseConfig.Validate: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return Config{}, ErrInvalidConfig{Errors: errs}
	}

	c := Config{}
	if f, ok := config["dataset_title_filter"].(string); ok {
		c.DatasetTitleFilter = f
	}
	switch categories := config["topic_categories"].(type) {
	case []string:
		c.TopicCategories = categories
	case []interface{}:
		for _, cat := range categories {
			c.TopicCategories = append(c.TopicCategories, cat.(string))
		}
	}
	return c, nil
}

// ToMap returns the type-specific configuration as stored in the harvester record
func (c Config) ToMap() map[string]interface{} {
	m := map[string]interface{}{}
	if c.DatasetTitleFilter != "" {
		m["dataset_title_filter"] = c.DatasetTitleFilter
	}
	if len(c.TopicCategories) > 0 {
		m["topic_categories"] = c.TopicCategories
	}
	return m
}

func (c Config) topicCategories() []string {
	if len(c.TopicCategories) > 0 {
		return c.TopicCategories
	}
	return common.TopicCategories
}

// keep returns whether the title passes the DatasetTitleFilter
func (c Config) keep(title string) bool {
	return c.DatasetTitleFilter == "" || strings.Contains(strings.ToLower(title), strings.ToLower(c.DatasetTitleFilter))
}
