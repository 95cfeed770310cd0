package common

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	commonconfig "github.com/G-Research/idracsim/internal/common/config"
)

const baseConfigFileName = "config"

// EnvPrefix is the prefix of environment variables that override configuration keys,
// e.g. IDRACSIM_FLEET_SIZE overrides fleet.size
const EnvPrefix = "IDRACSIM"

// BindCommandlineArguments makes the flags available through viper once they have been parsed.
func BindCommandlineArguments(flags *pflag.FlagSet) {
	err := viper.BindPFlags(flags)
	if err != nil {
		log.Error(err)
		os.Exit(-1)
	}
}

// LoadConfig reads config.yaml from defaultPath, merges in each file in overrideConfigs (later files win)
// and finally applies environment variable overrides, before unmarshalling the result into config.
func LoadConfig(config interface{}, defaultPath string, overrideConfigs []string) *viper.Viper {
	v := viper.GetViper()
	v.SetConfigName(baseConfigFileName)
	v.AddConfigPath(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		log.Errorf("Error reading base config path=%s: %v", defaultPath, err)
		os.Exit(-1)
	}
	log.Infof("Read base config from %s", v.ConfigFileUsed())

	for _, overrideConfig := range overrideConfigs {
		v.SetConfigFile(overrideConfig)
		err := v.MergeInConfig()
		if err != nil {
			log.Errorf("Error reading config from %s: %v", overrideConfig, err)
			os.Exit(-1)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.Unmarshal(config, commonconfig.CustomHooks...); err != nil {
		log.Error(err)
		os.Exit(-1)
	}

	return v
}

// ConfigureLogging sets up the global logrus logger. Level is any logrus level name and format is either
// "text" or "json".
func ConfigureLogging(level string, format string) error {
	parsedLevel, err := log.ParseLevel(level)
	if err != nil {
		return errors.WithStack(err)
	}
	switch strings.ToLower(format) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		return errors.Errorf("unknown log format %q; valid formats are text and json", format)
	}
	log.SetOutput(os.Stdout)
	log.SetLevel(parsedLevel)
	return nil
}

// ServeMetrics exposes the default prometheus registry on /metrics of the given port.
func ServeMetrics(port uint16) (shutdown func()) {
	hook := promhttp.Handler()
	mux := http.NewServeMux()
	mux.Handle("/metrics", hook)
	return ServeHttp(port, mux)
}

// ServeHttp starts serving handler on the given port in the background. The returned function shuts the
// server down, waiting up to five seconds for in-flight requests.
func ServeHttp(port uint16, handler http.Handler) (shutdown func()) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting http server listening on %d", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Http server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Infof("Stopping http server listening on %d", port)
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Http server did not shut down cleanly")
		}
	}
}
