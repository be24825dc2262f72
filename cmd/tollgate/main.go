// Tollgate issues API keys, meters their use against per-key quotas, and
// reports usage analytics for a dashboard.
//
// Usage:
//
//	# Start the HTTP service with defaults (in-process SQLite files under data/)
//	tollgate run
//
//	# Start with a configuration file
//	tollgate run --config /etc/tollgate/config.yaml
//
//	# Issue a key without going through HTTP
//	tollgate keys create --name ci
//
//	# Export the usage log as CSV
//	tollgate usage export --format csv --output usage.csv
//
//	# Print dashboard metrics
//	tollgate metrics
package main

func main() {
	Execute()
}
