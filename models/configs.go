package models

import "github.com/houseofcat/pistol/utils"

// Seasoning represents the configuration values.
type Seasoning struct {
	QueueConfig     *QueueConfig     `json:"QueueConfig" yaml:"QueueConfig"`
	PublisherConfig *PublisherConfig `json:"PublisherConfig" yaml:"PublisherConfig"`
	ServiceConfig   *ServiceConfig   `json:"ServiceConfig" yaml:"ServiceConfig"`
	TopologyConfig  *TopologyConfig  `json:"TopologyConfig" yaml:"TopologyConfig"`
}

// QueueConfig represents settings for creating/configuring the Queue.
type QueueConfig struct {
	AutoCreateTunnels    bool   `json:"AutoCreateTunnels" yaml:"AutoCreateTunnels"`
	AutoCreateWithWorker bool   `json:"AutoCreateWithWorker" yaml:"AutoCreateWithWorker"`
	AutoCreateTransform  string `json:"AutoCreateTransform" yaml:"AutoCreateTransform"` // name resolved by the service registry
	IDGenerator          string `json:"IDGenerator" yaml:"IDGenerator"`                 // uuid (default) or ulid
	MinPriority          int    `json:"MinPriority" yaml:"MinPriority"`                 // if zero, DefaultMinPriority
	MaxPriority          int    `json:"MaxPriority" yaml:"MaxPriority"`                 // if zero, DefaultMaxPriority
}

// PublisherConfig represents settings for configuring the Publisher.
type PublisherConfig struct {
	LetterBuffer         uint32 `json:"LetterBuffer" yaml:"LetterBuffer"`
	ReceiptBuffer        uint32 `json:"ReceiptBuffer" yaml:"ReceiptBuffer"`
	MaxRetryCount        uint32 `json:"MaxRetryCount" yaml:"MaxRetryCount"`
	SleepOnErrorInterval uint32 `json:"SleepOnErrorInterval" yaml:"SleepOnErrorInterval"` // milliseconds before a failed letter is requeued
}

// ServiceConfig represents settings for the RouterService.
type ServiceConfig struct {
	ErrorBuffer      uint32 `json:"ErrorBuffer" yaml:"ErrorBuffer"`
	LogLevel         string `json:"LogLevel" yaml:"LogLevel"` // debug, info, warn or error
	EnableMetrics    bool   `json:"EnableMetrics" yaml:"EnableMetrics"`
	MetricsNamespace string `json:"MetricsNamespace" yaml:"MetricsNamespace"`
}

// TopologyConfig allows you to build tunnels from a config file.
type TopologyConfig struct {
	Tunnels []*TunnelConfig `json:"Tunnels" yaml:"Tunnels"`
}

// TunnelConfig declares a tunnel. Functions are referenced by name.
// A tunnel with a Matcher is conditional. An empty TunnelID gets a generated id.
type TunnelConfig struct {
	TunnelID     string `json:"TunnelID" yaml:"TunnelID"`
	Transform    string `json:"Transform" yaml:"Transform"`
	PreTransform string `json:"PreTransform,omitempty" yaml:"PreTransform,omitempty"`
	Matcher      string `json:"Matcher,omitempty" yaml:"Matcher,omitempty"`
	WithWorker   bool   `json:"WithWorker" yaml:"WithWorker"`
}

// ConvertJSONFileToConfig opens a file.json and converts to Seasoning.
func ConvertJSONFileToConfig(fileNamePath string) (*Seasoning, error) {
	return utils.ReadJSONFile[Seasoning](fileNamePath)
}

// ConvertYAMLFileToConfig opens a file.yaml and converts to Seasoning.
func ConvertYAMLFileToConfig(fileNamePath string) (*Seasoning, error) {
	return utils.ReadYAMLFile[Seasoning](fileNamePath)
}
