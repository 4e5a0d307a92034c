// Command dkimgen generates a DKIM keypair for a sending domain and prints
// the DNS record to publish.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Postroom/postroom/internal/domain"
	"github.com/Postroom/postroom/pkg/dkim"
)

func main() {
	domainName := flag.String("domain", "", "sending domain to generate keys for")
	selector := flag.String("selector", domain.DefaultDKIMSelector, "DKIM selector")
	flag.Parse()

	if *domainName == "" {
		fmt.Fprintln(os.Stderr, "Usage: dkimgen -domain example.com [-selector postroom]")
		os.Exit(1)
	}

	keyPair, err := dkim.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate keypair: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("Domain:   %s\n", *domainName)
	fmt.Printf("Selector: %s\n", *selector)
	fmt.Println()
	fmt.Println("Publish this TXT record:")
	fmt.Println()
	fmt.Printf("  %s\n", dkim.DNSRecordName(*selector, *domainName))
	fmt.Printf("  %s\n", dkim.DNSRecord(keyPair.PublicKeyBase64))
	fmt.Println()
	fmt.Println("Private key (store it with the sending domain registration):")
	fmt.Println()
	fmt.Print(keyPair.PrivateKeyPEM)
}
