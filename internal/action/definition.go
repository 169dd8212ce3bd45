package action

import (
	"fmt"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Definition is the on-disk form of an action.
//
//	kind: http
//	timeout: 5s
//	request:
//	  method: POST
//	  url: "{{base_url}}/orders"
//	  body: '{"sku":"{{sku}}"}'
//	  expect:
//	    status: 201
//	    json:
//	      status: created
//	data:
//	  file: skus.csv
type Definition struct {
	Kind      string               `yaml:"kind"`
	Timeout   time.Duration        `yaml:"timeout"`
	Request   *RequestDefinition   `yaml:"request"`
	WebSocket *WebSocketDefinition `yaml:"websocket"`
	Sleep     *SleepDefinition     `yaml:"sleep"`
	Data      *DataDefinition      `yaml:"data"`

	// Dir is the directory of the definition file. Relative body files
	// resolve against it.
	Dir string `yaml:"-"`
}

type RequestDefinition struct {
	Method   string            `yaml:"method"`
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	Body     string            `yaml:"body"`
	BodyFile string            `yaml:"body_file"`
	Expect   Expectation       `yaml:"expect"`
}

// Expectation checks a response. JSON maps gjson paths to the expected
// string form of the value at that path.
type Expectation struct {
	Status int               `yaml:"status"`
	JSON   map[string]string `yaml:"json"`
}

type WebSocketDefinition struct {
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	Messages []string          `yaml:"messages"`
	Receive  int               `yaml:"receive"`
}

// DataDefinition feeds one record per invocation into the settings. Loop
// defaults to true.
type DataDefinition struct {
	File string `yaml:"file"`
	Loop *bool  `yaml:"loop"`
}

type SleepDefinition struct {
	Duration time.Duration `yaml:"duration"`
}

func parseDefinition(data []byte, path string) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("%w: %s: %v", ErrLoad, path, err)
	}
	def.Dir = filepath.Dir(path)
	return def, nil
}
