package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/payfast-itn/internal/itn"
	"github.com/frahmantamala/payfast-itn/internal/sandbox"
	"github.com/frahmantamala/payfast-itn/pkg/logger"
)

var itnCmd = &cobra.Command{
	Use:   "itn",
	Short: "Notification tooling",
	Long:  `Build, sign and send test notifications`,
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Print a signed notification body",
	Long:  `Build a notification from flags, sign it with the configured passphrase and print the body`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := buildTestNotification()
		if err != nil {
			return err
		}
		fmt.Println(string(body))
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send [url]",
	Short: "Sign a notification and post it to a receiver",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendTestNotification(args)
	},
}

var (
	itnPaymentID string
	itnItemName  string
	itnGross     string
	itnFee       string
	itnStatus    string
	itnEmail     string
	itnBadSig    bool
)

func buildTestNotification() ([]byte, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	gross, err := decimal.NewFromString(itnGross)
	if err != nil {
		return nil, fmt.Errorf("invalid amount_gross %q: %w", itnGross, err)
	}
	fee, err := decimal.NewFromString(itnFee)
	if err != nil {
		return nil, fmt.Errorf("invalid amount_fee %q: %w", itnFee, err)
	}

	paymentID := itnPaymentID
	if paymentID == "" {
		paymentID = uuid.NewString()
	}

	p := sandbox.NewPayment(paymentID, itnItemName, gross, fee)
	p.Status = itnStatus
	p.EmailAddress = itnEmail

	if itnBadSig {
		fields := p.Fields(config.ITN.MerchantID)
		fields = append(fields, itn.Field{Name: itn.FieldSignature, Value: "deadbeef"})
		return []byte(itn.Encode(fields)), nil
	}

	return sandbox.SignedBody(p, config.ITN.MerchantID, itn.NewSigner(config.ITN.Passphrase)), nil
}

func sendTestNotification(args []string) error {
	lg := logger.LoggerWrapper()

	body, err := buildTestNotification()
	if err != nil {
		return err
	}

	config, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	target := fmt.Sprintf("http://localhost:%d%s", config.Server.Port, config.ITN.Path)
	if len(args) == 1 {
		target = args[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", itn.FormContentType)

	lg.Info("sending test notification", "url", target, "bytes", len(body))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	lg.Info("receiver answered", "status", resp.StatusCode, "body", string(respBody))
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{signCmd, sendCmd} {
		c.Flags().StringVar(&itnPaymentID, "m-payment-id", "", "Merchant payment id (random when empty)")
		c.Flags().StringVar(&itnItemName, "item-name", "Test Product", "Item name")
		c.Flags().StringVar(&itnGross, "amount-gross", "100.00", "Gross amount")
		c.Flags().StringVar(&itnFee, "amount-fee", "2.00", "Gateway fee")
		c.Flags().StringVar(&itnStatus, "payment-status", sandbox.StatusComplete, "Payment status")
		c.Flags().StringVar(&itnEmail, "email", "", "Payer email address")
		c.Flags().BoolVar(&itnBadSig, "bad-signature", false, "Send a signature that will not verify")
	}

	itnCmd.AddCommand(signCmd)
	itnCmd.AddCommand(sendCmd)

	rootCmd.AddCommand(itnCmd)
}
