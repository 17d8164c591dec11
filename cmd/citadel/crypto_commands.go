package main

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/CatastropheArena/Catastrophe-Genesis/core"
	"github.com/CatastropheArena/Catastrophe-Genesis/crypto/ibe"
	"github.com/CatastropheArena/Catastrophe-Genesis/ptb"
)

// The offline tooling shares the exact crypto code paths the server uses,
// so keys generated here are directly servable.

func masterKeyFlag() cli.Flag {
	return &cli.StringFlag{Name: "master-key", Usage: "hex-encoded master scalar", Required: true}
}

func loadMasterKey(c *cli.Context) (*ibe.MasterKey, error) {
	raw, err := hex.DecodeString(c.String("master-key"))
	if err != nil {
		return nil, fmt.Errorf("decoding --master-key: %w", err)
	}
	return ibe.MasterKeyFromBytes(raw)
}

func keyIDFromFlags(c *cli.Context) ([]byte, error) {
	pkg, err := core.ParseAddress(c.String("package"))
	if err != nil {
		return nil, fmt.Errorf("parsing --package: %w", err)
	}
	innerID, err := hex.DecodeString(c.String("id"))
	if err != nil {
		return nil, fmt.Errorf("decoding --id: %w", err)
	}
	return core.DeriveKeyID(pkg, innerID), nil
}

func genkeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "genkey",
		Usage: "generate a fresh master key",
		Action: func(c *cli.Context) error {
			master, err := ibe.GenerateMasterKey()
			if err != nil {
				return err
			}
			fmt.Printf("master_key: %s\n", hex.EncodeToString(master.Bytes()))
			fmt.Printf("public_key: %s\n", base64.StdEncoding.EncodeToString(master.PublicKey().Bytes()))
			return nil
		},
	}
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "derive the user secret key for an identity",
		Flags: []cli.Flag{
			masterKeyFlag(),
			&cli.StringFlag{Name: "package", Usage: "first deployed package address", Required: true},
			&cli.StringFlag{Name: "id", Usage: "hex identity bytes", Required: true},
		},
		Action: func(c *cli.Context) error {
			master, err := loadMasterKey(c)
			if err != nil {
				return err
			}
			keyID, err := keyIDFromFlags(c)
			if err != nil {
				return err
			}
			usk, err := master.Extract(keyID)
			if err != nil {
				return err
			}
			fmt.Printf("key_id: %s\n", hex.EncodeToString(keyID))
			fmt.Printf("user_secret_key: %s\n", base64.StdEncoding.EncodeToString(usk.Bytes()))
			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "check a derived key against a master public key",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "public-key", Usage: "base64 master public key", Required: true},
			&cli.StringFlag{Name: "package", Usage: "first deployed package address", Required: true},
			&cli.StringFlag{Name: "id", Usage: "hex identity bytes", Required: true},
			&cli.StringFlag{Name: "key", Usage: "base64 user secret key", Required: true},
		},
		Action: func(c *cli.Context) error {
			pkRaw, err := decodeBase64Arg(c, "public-key")
			if err != nil {
				return err
			}
			pk, err := ibe.PublicKeyFromBytes(pkRaw)
			if err != nil {
				return err
			}
			uskRaw, err := decodeBase64Arg(c, "key")
			if err != nil {
				return err
			}
			usk, err := ibe.UserSecretKeyFromBytes(uskRaw)
			if err != nil {
				return err
			}
			keyID, err := keyIDFromFlags(c)
			if err != nil {
				return err
			}
			ok, err := ibe.VerifyUserSecretKey(usk, keyID, pk)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("key does not match identity")
			}
			fmt.Println("valid")
			return nil
		},
	}
}

func encryptCommand() *cli.Command {
	return &cli.Command{
		Name:  "encrypt",
		Usage: "seal a 32-byte message to an identity",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "public-key", Usage: "base64 master public key", Required: true},
			&cli.StringFlag{Name: "package", Usage: "first deployed package address", Required: true},
			&cli.StringFlag{Name: "id", Usage: "hex identity bytes", Required: true},
			&cli.StringFlag{Name: "message", Usage: "hex 32-byte payload", Required: true},
		},
		Action: func(c *cli.Context) error {
			pkRaw, err := decodeBase64Arg(c, "public-key")
			if err != nil {
				return err
			}
			pk, err := ibe.PublicKeyFromBytes(pkRaw)
			if err != nil {
				return err
			}
			msgRaw, err := hex.DecodeString(c.String("message"))
			if err != nil {
				return fmt.Errorf("decoding --message: %w", err)
			}
			if len(msgRaw) != 32 {
				return fmt.Errorf("message must be 32 bytes, got %d", len(msgRaw))
			}
			var msg [32]byte
			copy(msg[:], msgRaw)

			keyID, err := keyIDFromFlags(c)
			if err != nil {
				return err
			}
			c1, c2, err := ibe.Encrypt(pk, keyID, msg)
			if err != nil {
				return err
			}
			fmt.Printf("c1: %s\n", base64.StdEncoding.EncodeToString(c1))
			fmt.Printf("c2: %s\n", base64.StdEncoding.EncodeToString(c2[:]))
			return nil
		},
	}
}

func decryptCommand() *cli.Command {
	return &cli.Command{
		Name:  "decrypt",
		Usage: "open a sealed message with a derived key",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key", Usage: "base64 user secret key", Required: true},
			&cli.StringFlag{Name: "c1", Usage: "base64 ephemeral element", Required: true},
			&cli.StringFlag{Name: "c2", Usage: "base64 masked payload", Required: true},
		},
		Action: func(c *cli.Context) error {
			uskRaw, err := decodeBase64Arg(c, "key")
			if err != nil {
				return err
			}
			usk, err := ibe.UserSecretKeyFromBytes(uskRaw)
			if err != nil {
				return err
			}
			c1, err := decodeBase64Arg(c, "c1")
			if err != nil {
				return err
			}
			c2Raw, err := decodeBase64Arg(c, "c2")
			if err != nil {
				return err
			}
			if len(c2Raw) != 32 {
				return fmt.Errorf("c2 must be 32 bytes, got %d", len(c2Raw))
			}
			var c2 [32]byte
			copy(c2[:], c2Raw)

			msg, err := ibe.Decrypt(usk, c1, c2)
			if err != nil {
				return err
			}
			fmt.Printf("message: %s\n", hex.EncodeToString(msg[:]))
			return nil
		},
	}
}

func parsePtbCommand() *cli.Command {
	return &cli.Command{
		Name:  "parse-ptb",
		Usage: "validate transaction bytes and list the identity arguments",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ptb", Usage: "base64 transaction bytes", Required: true},
		},
		Action: func(c *cli.Context) error {
			raw, err := decodeBase64Arg(c, "ptb")
			if err != nil {
				return err
			}
			valid, err := ptb.Parse(raw)
			if err != nil {
				return err
			}
			fmt.Printf("function: %s\n", valid.FullFunction())
			for i, id := range valid.InnerIDs() {
				fmt.Printf("identity[%d]: %s\n", i, hex.EncodeToString(id))
			}
			return nil
		},
	}
}
