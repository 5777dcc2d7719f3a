package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/devreg/internal"
	"github.com/dgellow/devreg/internal/config"
	"github.com/dgellow/devreg/internal/crypto"
	"github.com/dgellow/devreg/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version":     config.SupportedVersion,
		"issuer":      "https://idp.yourcompany.com",
		"clientId":    map[string]string{"$env": "DEVREG_CLIENT_ID"},
		"redirectUri": "com.yourcompany.device:/callback",
		"scopes":      []string{"openid"},
		"deviceName":  "device-1",
		"productId":   "your-product",
		"codec": map[string]any{
			"requireCodes": false,
		},
		"storage": map[string]any{
			"kind":            "file",
			"path":            "devreg-envelopes.json",
			"ttl":             "15m",
			"cleanupInterval": "5m",
			"encryptionKey":   map[string]string{"$env": "DEVREG_ENCRYPTION_KEY"},
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Printf("  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Printf("  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Printf("  - %s\n", warn.Message)
			}
		}
	}

	fmt.Println()
	if len(result.Errors) == 0 && len(result.Warnings) == 0 {
		fmt.Println("Result: PASS")
	} else if result.IsValid() {
		fmt.Println("Result: FAIL (warnings present)")
	} else {
		fmt.Println("Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// run performs exactly one registration step and prints its result.
func run(ctx context.Context, d *internal.DevReg, begin bool, redirect, activate, compat string) error {
	switch {
	case begin:
		result, err := d.Begin(ctx)
		if err != nil {
			return err
		}
		return printJSON(result)

	case redirect != "":
		resp, err := d.HandleRedirect(ctx, redirect)
		if err != nil {
			return err
		}
		return printJSON(resp)

	case activate != "":
		req, err := d.Activate(ctx, activate)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"endpoint": req.Endpoint(),
			"form":     req.Form(),
		})

	case compat != "":
		resp, err := d.Compat(ctx, compat)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"client_id":    resp.Request.GetClient().GetID(),
			"redirect_url": resp.RedirectURL(),
			"parameters":   resp.Response.GetParameters(),
		})
	}

	return fmt.Errorf("one of -begin, -redirect, -activate or -compat is required")
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	generateKey := flag.Bool("generate-key", false, "print a random storage encryption key and exit")
	logLevel := flag.String("log-level", "", "override LOG_LEVEL (error, warn, info, debug, trace)")
	begin := flag.Bool("begin", false, "start a registration and print its state and registration URL")
	redirect := flag.String("redirect", "", "handle the redirect URI returned by the registration endpoint")
	activate := flag.String("activate", "", "print the activation request for the registration with this state")
	compat := flag.String("compat", "", "print the authorization code response for the registration with this state")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *generateKey {
		key, err := crypto.GenerateKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}
	if *logLevel != "" {
		if err := log.SetLogLevel(*logLevel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogDebugWithFields("main", "Starting devreg", map[string]any{
		"version":  BuildVersion,
		"config":   *conf,
		"logLevel": log.GetLogLevel(),
	})

	ctx := context.Background()
	devReg, err := internal.NewDevReg(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create device registration: %v", err)
		os.Exit(1)
	}

	err = run(ctx, devReg, *begin, *redirect, *activate, *compat)
	if closeErr := devReg.Close(); closeErr != nil {
		log.LogWarn("Failed to close storage: %v", closeErr)
	}
	if err != nil {
		log.LogError("%v", err)
		os.Exit(1)
	}
}
