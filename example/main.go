// Example usage of the secureconfig service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"secureconfig"
)

type appConfig struct {
	Server struct {
		Host string `toml:"host"`
		Port int    `toml:"port"`
	} `toml:"server"`
	Database struct {
		DSN      string `toml:"dsn,required"`
		Password string `toml:"password,sensitive"`
	} `toml:"database"`
	Theme string `toml:"theme"`
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	defaults := appConfig{Theme: "light"}
	defaults.Server.Host = "localhost"
	defaults.Server.Port = 8080

	svc, err := secureconfig.NewBuilder().
		WithDir("./conf").
		WithEnvironment(os.Getenv("APP_ENV")).
		WithEnvPrefix("MYAPP_").
		WithLogger(logger).
		WithDefaults(defaults).
		WithRequired("database.dsn").
		Build(context.Background())
	if err != nil {
		log.Fatalf("configuration failed: %v", err)
	}
	defer svc.Close()

	host, _ := svc.String("server.host")
	port, _ := svc.Int64("server.port")
	fmt.Printf("serving on %s:%d\n", host, port)

	// Sensitive values read back decrypted; exports redact them.
	fmt.Println("password:", svc.Get("database.password", ""))
	_ = svc.Dump(os.Stdout, false)

	unwatch := svc.Watch("theme", func(ch secureconfig.Change) {
		fmt.Printf("theme changed: %v -> %v\n", ch.Previous, ch.Next)
	})
	defer unwatch()

	if err := svc.Set("theme", "dark"); err != nil {
		log.Printf("set failed: %v", err)
	}
}
