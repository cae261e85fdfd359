package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/power-grid/internal/auth"
	"github.com/example/power-grid/internal/config"
	srv "github.com/example/power-grid/internal/server"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	issuer := auth.NewIssuerFromEnv(cfg.TokenTTL)
	if os.Getenv("POWERGRID_PRINT_HOST_TOKEN") != "" {
		tok, err := issuer.IssueHost("cli")
		if err != nil {
			log.Fatalf("host token: %v", err)
		}
		fmt.Println(tok)
	}

	gs := srv.NewGameServer(cfg, issuer)
	r := gs.Routes()

	// Add CORS headers first
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		log.Printf("shutting down, stopping running games")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := gs.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
		os.Exit(0)
	}()

	// Determine certificate paths
	certPath, keyPath := cfg.CertFile, cfg.KeyFile
	if certPath == "" || keyPath == "" {
		certPath = "certs/server-san.crt"
		keyPath = "certs/server-san.key"
	}

	if !fileExists(certPath) || !fileExists(keyPath) {
		log.Printf("Certificate or key not found at %s / %s", certPath, keyPath)
		if cfg.TLSOnly {
			log.Fatal("Exiting due to missing certificates in TLS-only mode")
		}
		log.Printf("Power grid server (HTTP) listening on :%s", cfg.HTTPPort)
		log.Fatal(http.ListenAndServe(":"+cfg.HTTPPort, r))
	}

	// Configure TLS
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}

	// Start HTTPS server
	go func() {
		httpsAddr := ":" + cfg.HTTPSPort
		log.Printf("Power grid server (HTTPS) listening on %s", httpsAddr)

		server := &http.Server{
			Addr:      httpsAddr,
			Handler:   r,
			TLSConfig: tlsConfig,
		}

		if err := server.ListenAndServeTLS(certPath, keyPath); err != nil {
			log.Fatal("HTTPS server failed:", err)
		}
	}()

	if cfg.TLSOnly {
		// Block forever
		select {}
	}

	// HTTP keeps health checks and redirects everything else to HTTPS
	httpAddr := ":" + cfg.HTTPPort
	log.Printf("Power grid server (HTTP->HTTPS redirect) listening on %s", httpAddr)

	httpRouter := mux.NewRouter()
	httpRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	httpRouter.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpsURL := "https://" + r.Host
		if cfg.HTTPSPort != "443" {
			httpsURL += ":" + cfg.HTTPSPort
		}
		httpsURL += r.RequestURI

		http.Redirect(w, r, httpsURL, http.StatusMovedPermanently)
	})

	httpServer := &http.Server{
		Addr:    httpAddr,
		Handler: httpRouter,
	}

	log.Fatal(httpServer.ListenAndServe())
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
