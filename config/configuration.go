package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// ServerConfiguration is the top-level process configuration -- listen
// address, data directory, dataset config directory, and SMTP notifier
// settings -- loaded with viper the way the teacher's QuackPipeConfiguration
// was, generalized from the teacher's single-section shape to the handful
// of top-level concerns this server needs.
type ServerConfiguration struct {
	ListenAddr     string `mapstructure:"listen_addr" default:":8080"`
	DataDir        string `mapstructure:"data_dir" default:"/tmp/erddap-data"`
	DatasetDir     string `mapstructure:"dataset_dir" default:"/tmp/erddap-datasets"`
	SMTP           SMTPConfiguration `mapstructure:"smtp"`
}

type SMTPConfiguration struct {
	Enabled  bool   `mapstructure:"enabled" default:"false"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" default:"587"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

var Server *ServerConfiguration

// InitServerConfiguration loads file via viper into the package-level
// Server value, matching the teacher's InitConfig/panic-on-error register
// for a process that can't usefully continue without its configuration.
func InitServerConfiguration(file string) {
	viper.SetConfigFile(file)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("read server configuration %s: %w", file, err))
	}
	Server = &ServerConfiguration{}
	if err := viper.Unmarshal(Server); err != nil {
		panic(fmt.Errorf("unmarshal server configuration: %w", err))
	}
}
