// Package config loads the bridge configuration.
//
// A Config starts from Default(), which reproduces the stock sensor setup
// (10.42.0.186:16171 over TCP, raw logging off, 10 Hz). File layers are merged
// on top in the order they were added, then DVL_* environment variables are
// applied, then the result is validated:
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/dvlbridge.yaml")
//	loader.AddLayer("configs/site.json") // overrides the first layer
//
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//
// Layers may be JSON or YAML. Nested sections merge key by key. Duration
// fields accept Go duration strings ("750ms") or plain numbers of seconds.
//
// Recognized environment variables (prefix configurable with SetEnvPrefix):
//
//	DVL_SENSOR_TRANSPORT  DVL_SENSOR_HOST   DVL_SENSOR_PORT  DVL_SENSOR_DEVICE
//	DVL_SENSOR_BAUD       DVL_DO_LOG_RAW_DATA
//	DVL_NATS_URLS (comma separated)  DVL_NATS_USERNAME  DVL_NATS_PASSWORD  DVL_NATS_TOKEN
//	DVL_RAW_SUBJECT       DVL_REPORT_SUBJECT  DVL_ENCODING
//	DVL_SHADOW_BACKEND    DVL_REDIS_ADDR      DVL_BOLT_PATH
//	DVL_WEBSOCKET_ENABLED DVL_METRICS_ENABLED DVL_METRICS_PORT
//
// Every failure is a fatal error wrapping errors.ErrInvalidConfig. The
// configuration is read once; there is no runtime reload.
package config
