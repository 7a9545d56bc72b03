package utils

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type UtilsTestSuite struct {
	suite.Suite
}

func TestUtilsSuite(t *testing.T) {
	suite.Run(t, new(UtilsTestSuite))
}

type credentials struct {
	ApiKey    string `json:"api_key" jsonschema:"description=Exchange API key"`
	SecretKey string `json:"secret_key" jsonschema:"description=Exchange API secret"`
}

type botConfig struct {
	Credentials credentials `json:"credentials"`
	BaseURL     string      `json:"base_url,omitempty"`
	RecvWindow  int64       `json:"recv_window,omitempty"`
	UseTestnet  bool        `json:"use_testnet"`
}

func (suite *UtilsTestSuite) TestGetSchemaFromConfig() {
	schema, err := GetSchemaFromConfig(botConfig{})
	suite.NoError(err)
	suite.NotEmpty(schema)

	var result map[string]interface{}
	err = json.Unmarshal([]byte(schema), &result)
	suite.NoError(err)

	// top-level schema references the struct definition in $defs
	suite.Contains(result, "$schema")
	suite.Contains(result, "$ref")
	suite.Contains(result, "$defs")
}

func (suite *UtilsTestSuite) TestGetSchemaFromConfigPointer() {
	schema, err := GetSchemaFromConfig(&botConfig{})
	suite.NoError(err)
	suite.NotEmpty(schema)
}

func (suite *UtilsTestSuite) TestGetSchemaFromConfigIsIndented() {
	schema, err := GetSchemaFromConfig(botConfig{})
	suite.NoError(err)
	suite.True(strings.Contains(schema, "\n  "))
}

func (suite *UtilsTestSuite) TestGetSchemaFromConfigDescriptions() {
	schema, err := GetSchemaFromConfig(botConfig{})
	suite.NoError(err)
	suite.Contains(schema, "Exchange API key")
}
