package actions

import (
	"fmt"
	"strings"
)

const DefaultIconURL = "https://pbs.twimg.com/profile_images/1800478667040002048/8bUg0jRH_400x400.jpg"

// Action paths served by the API.
const (
	PathDeposit = "/api/deposit"
	PathDomain  = "/api/domain"
	PathNFT     = "/api/nft"
	PathKamino  = "/api/kamino"
)

// Descriptors holds the constant GET payload of every action.
type Descriptors struct {
	Deposit ActionGetResponse
	Domain  ActionGetResponse
	NFT     ActionGetResponse
	Kamino  ActionGetResponse
}

// NewDescriptors builds the descriptors once at startup; they never change afterwards.
// A non-empty origin makes every href absolute.
func NewDescriptors(origin, icon, tld string) *Descriptors {
	if icon == "" {
		icon = DefaultIconURL
	}
	origin = strings.TrimRight(origin, "/")
	deposit := LinkedAction{
		Href:  origin + PathDeposit + "?amount={amount}",
		Label: "Deposit",
		Parameters: []ActionParameter{
			{Name: "amount", Label: "Enter amount", Required: true},
		},
	}
	return &Descriptors{
		Deposit: ActionGetResponse{
			Type:        "action",
			Icon:        icon,
			Title:       "Deposit USDC",
			Description: "Direct lend your USDC into Kamino and earn.",
			Label:       "Deposit",
			Links: &ActionLinks{Actions: []LinkedAction{deposit}},
		},
		Domain: ActionGetResponse{
			Type:  "action",
			Icon:  icon,
			Title: fmt.Sprintf("Buy %s domains", tld),
			Description: fmt.Sprintf("Buy %s domains with your SOL. If the domain is available you can register it "+
				"directly, if it is taken and listed you can buy it from the marketplace.", tld),
			Label: fmt.Sprintf("Buy %s domains", tld),
			Links: &ActionLinks{Actions: []LinkedAction{{
				Href:  origin + PathDomain + "?handle={handle}",
				Label: "Submit",
				Parameters: []ActionParameter{
					{Name: "handle", Label: fmt.Sprintf("Enter domain name ( without %s )", tld), Required: true},
				},
			}}},
		},
		NFT: ActionGetResponse{
			Type:        "action",
			Icon:        icon,
			Title:       "Buy NFT",
			Description: "Buy a listed NFT at its current price, marketplace fee and royalty included.",
			Label:       "Buy",
			Links: &ActionLinks{Actions: []LinkedAction{{
				Href:  origin + PathNFT + "?mint={mint}",
				Label: "Buy",
				Parameters: []ActionParameter{
					{Name: "mint", Label: "Enter NFT mint address", Required: true},
				},
			}}},
		},
		Kamino: ActionGetResponse{
			Type:        "action",
			Icon:        icon,
			Title:       "Kamino SuperBlink",
			Description: "Kamino",
			Label:       "Kamino",
			// only actions this service can build are linked
			Links: &ActionLinks{Actions: []LinkedAction{deposit}},
		},
	}
}

// Manifest returns the actions.json rules for every action path.
func Manifest() ActionsJSON {
	return ActionsJSON{Rules: []ActionRule{
		{PathPattern: "/deposit", APIPath: PathDeposit},
		{PathPattern: "/domain", APIPath: PathDomain},
		{PathPattern: "/nft", APIPath: PathNFT},
		{PathPattern: "/kamino", APIPath: PathKamino},
	}}
}
