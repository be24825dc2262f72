// Package tls builds the server-side TLS configuration and keeps the served
// certificate current when the files on disk are rotated.
//
//	cfg, reloader, err := tls.NewServerConfig(&conf.Security.TLS)
//	if err != nil {
//		return err
//	}
//	go reloader.Run(ctx)
//	srv.TLSConfig = cfg
package tls
