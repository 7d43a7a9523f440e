package presence

import (
	"github.com/hugolgst/rich-go/client"
)

// Discord is the Client talking to the local Discord app over IPC
type Discord struct{}

func (Discord) Login(appID string) error {
	return client.Login(appID)
}

func (Discord) Logout() {
	client.Logout()
}

func (Discord) SetActivity(a Activity) error {
	act := client.Activity{
		Details:    a.Details,
		State:      a.State,
		LargeImage: a.LargeImage,
		LargeText:  a.LargeText,
		SmallImage: a.SmallImage,
		SmallText:  a.SmallText,
	}
	if !a.Start.IsZero() {
		start := a.Start
		act.Timestamps = &client.Timestamps{Start: &start}
	}
	for _, b := range a.Buttons {
		act.Buttons = append(act.Buttons, &client.Button{Label: b.Label, Url: b.URL})
	}
	return client.SetActivity(act)
}
