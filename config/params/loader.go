package params

import (
	"io/ioutil"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// LoadConfigFile loads, unmarshals, and applies an orchestrator config file.
// Unlisted keys keep their mainnet defaults.
func LoadConfigFile(configFileName string) {
	yamlFile, err := ioutil.ReadFile(configFileName) // #nosec G304
	if err != nil {
		log.WithError(err).Fatal("Failed to read orchestrator config file.")
	}
	conf := MainnetConfig().Copy()
	if err := yaml.UnmarshalStrict(yamlFile, conf); err != nil {
		if _, ok := err.(*yaml.TypeError); !ok {
			log.WithError(err).Fatal("Failed to parse orchestrator config yaml file.")
		} else {
			log.WithError(err).Error("There were some issues parsing the config from a yaml file")
		}
	}
	if conf.ConfigName == "" {
		conf.ConfigName = "devnet"
	}
	log.Debugf("Config file values: %+v", conf)
	OverrideKestrelConfig(conf)
}
