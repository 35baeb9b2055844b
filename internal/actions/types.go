package actions

// Wire types of the Solana Actions protocol.

type ActionParameter struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Required bool   `json:"required,omitempty"`
}

type LinkedAction struct {
	Href       string            `json:"href"`
	Label      string            `json:"label"`
	Parameters []ActionParameter `json:"parameters,omitempty"`
}

type ActionLinks struct {
	Actions []LinkedAction `json:"actions"`
}

// ActionGetResponse describes an action: what it does and which inputs it takes.
type ActionGetResponse struct {
	Type        string       `json:"type,omitempty"`
	Icon        string       `json:"icon"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Label       string       `json:"label"`
	Disabled    bool         `json:"disabled,omitempty"`
	Links       *ActionLinks `json:"links,omitempty"`
	Error       *ActionError `json:"error,omitempty"`
}

type ActionPostRequest struct {
	Account string `json:"account"`
}

// NextActionLink chains another action after the transaction is confirmed.
type NextActionLink struct {
	Type   string            `json:"type"`
	Action ActionGetResponse `json:"action"`
}

type PostResponseLinks struct {
	Next *NextActionLink `json:"next,omitempty"`
}

type ActionPostResponse struct {
	Transaction string             `json:"transaction"`
	Message     string             `json:"message,omitempty"`
	Links       *PostResponseLinks `json:"links,omitempty"`
}

type ActionError struct {
	Message string `json:"message"`
}

type ActionRule struct {
	PathPattern string `json:"pathPattern"`
	APIPath     string `json:"apiPath"`
}

// ActionsJSON is the /actions.json manifest mapping website paths to action endpoints.
type ActionsJSON struct {
	Rules []ActionRule `json:"rules"`
}
