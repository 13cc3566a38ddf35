package utils

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// JSONCopy copies input by round tripping it through JSON.
// Only exported fields survive and numbers inside interface values come back as float64.
func JSONCopy[T any](input T) (T, error) {

	var output T
	var json = jsoniter.ConfigCompatibleWithStandardLibrary
	data, err := json.Marshal(&input)
	if err != nil {
		return output, err
	}

	err = json.Unmarshal(data, &output)

	return output, err
}

// ReadJSONFile opens a file.json and converts it to T.
func ReadJSONFile[T any](fileNamePath string) (*T, error) {

	byteValue, err := os.ReadFile(fileNamePath)
	if err != nil {
		return nil, err
	}

	output := new(T)
	var json = jsoniter.ConfigFastest
	err = json.Unmarshal(byteValue, output)

	return output, err
}

// ReadYAMLFile opens a file.yaml and converts it to T.
func ReadYAMLFile[T any](fileNamePath string) (*T, error) {

	byteValue, err := os.ReadFile(fileNamePath)
	if err != nil {
		return nil, err
	}

	output := new(T)
	err = yaml.Unmarshal(byteValue, output)

	return output, err
}
