/*
Package security groups the transport and credential concerns of the service.

  - auth extracts the API key from a request and resolves it to a stored key.
  - secrets expands ${secret:name} references in configuration values from
    environment variables or mounted secret files.
  - tls builds the server TLS configuration and reloads rotated certificates.
*/
package security
