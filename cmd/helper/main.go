package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	lti1p3 "github.com/aspire-lms/lti1p3-golang"
)

func main() {
	app := &cli.App{
		Name: "LTI 1.3 Golang Helper",
		Commands: []*cli.Command{
			runGenerateKeypair,
			runPublicJWK,
		},
	}

	app.RunAndExitOnError()
}

var runGenerateKeypair = &cli.Command{
	Name:  "generate-keypair",
	Usage: "generate the tool's RSA keypair and write it to PEM files",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "out-prefix",
			Value: "lti_tool",
		},
	},
	Action: func(cmd *cli.Context) error {
		priv, pub, err := lti1p3.GenerateKeyPair()
		if err != nil {
			return err
		}

		prefix := cmd.String("out-prefix")

		if err := os.WriteFile(prefix+"_private.pem", priv, 0600); err != nil {
			return err
		}

		if err := os.WriteFile(prefix+"_public.pem", pub, 0644); err != nil {
			return err
		}

		fmt.Printf("wrote %s_private.pem and %s_public.pem\n", prefix, prefix)

		return nil
	},
}

var runPublicJWK = &cli.Command{
	Name:  "public-jwk",
	Usage: "print the tool's public JWK set for a PEM encoded public key",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "public-key",
			Required: true,
		},
	},
	Action: func(cmd *cli.Context) error {
		pub, err := os.ReadFile(cmd.String("public-key"))
		if err != nil {
			return err
		}

		keys, err := lti1p3.NewKeyManager(lti1p3.KeyManagerArgs{
			Tool: &lti1p3.ToolConfig{PublicKey: pub},
		})
		if err != nil {
			return err
		}

		jwks, err := keys.ToolJWKS()
		if err != nil {
			return err
		}

		b, err := json.MarshalIndent(jwks, "", "  ")
		if err != nil {
			return err
		}

		fmt.Println(string(b))

		return nil
	},
}
