package actions

import (
	"github.com/gagliardetto/solana-go"

	"github.com/leafsii/blinks-backend/internal/onchain"
)

// Format encodes tx unsigned and wraps it in a POST response. A non-nil next
// is attached as an inline follow-up action.
func Format(tx *solana.Transaction, message string, next *ActionGetResponse) (ActionPostResponse, error) {
	encoded, err := onchain.EncodeUnsigned(tx)
	if err != nil {
		return ActionPostResponse{}, err
	}

	resp := ActionPostResponse{
		Transaction: encoded,
		Message:     message,
	}
	if next != nil {
		resp.Links = &PostResponseLinks{
			Next: &NextActionLink{Type: "inline", Action: *next},
		}
	}
	return resp, nil
}

// Response formats a resolver result.
func (res *Result) Response() (ActionPostResponse, error) {
	return Format(res.Transaction, res.Message, res.Next)
}
