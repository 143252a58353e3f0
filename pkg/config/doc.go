// Package config defines the configuration surface consumed by the call engine.
//
// The engine itself never reads environment or project state. The application
// hands it a Config (usually loaded from a YAML or JSON file) and every call
// resolves the effective settings for its subproject:
//
//	cfg, err := config.LoadFromFile("hellohttp.yaml")
//	if err != nil {
//	    return err
//	}
//	sub, err := cfg.Resolve("payments")
//
// A resolved SubprojectConfig carries the HTTP protocol version preference,
// the SSL trust material description and the payload storage limits used by
// the raw exchange recorder.
package config
