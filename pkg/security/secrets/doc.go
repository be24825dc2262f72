// Package secrets resolves secret references in configuration values.
//
// A configuration string may embed ${secret:name} references. Each reference
// is looked up through an ordered list of providers; the first provider that
// has the secret wins. Two providers are available:
//
//   - EnvProvider reads TOLLGATE_SECRET_<NAME> environment variables.
//   - FileProvider reads one file per secret from a directory, the layout used
//     by Docker and Kubernetes secret mounts.
//
// The resolver is applied to the key encryption passphrase and the Redis
// password before the stores are opened, so neither has to be written into
// the YAML file in clear text.
package secrets
