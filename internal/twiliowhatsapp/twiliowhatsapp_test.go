package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeMessages struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeMessages) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestClient_SendMessage(t *testing.T) {
	fake := &fakeMessages{}
	c := &Client{api: fake, fromWhats: Address("+15550000000")}
	if err := c.SendMessage(context.Background(), "+15551112222", "Hello! What is your name?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *fake.params.To != "whatsapp:+15551112222" {
		t.Errorf("unexpected To %q", *fake.params.To)
	}
	if *fake.params.From != "whatsapp:+15550000000" {
		t.Errorf("unexpected From %q", *fake.params.From)
	}
	if *fake.params.Body != "Hello! What is your name?" {
		t.Errorf("unexpected Body %q", *fake.params.Body)
	}
}

func TestClient_SendMessageError(t *testing.T) {
	c := &Client{api: &fakeMessages{err: errors.New("401")}, fromWhats: "whatsapp:+1"}
	if err := c.SendMessage(context.Background(), "+2", "x"); err == nil {
		t.Error("expected error")
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	if _, err := NewClient(WithFromWhats("+1")); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC1"), WithAuthToken("t")); err == nil {
		t.Error("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC1"), WithAuthToken("t"), WithFromWhats("+1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+1" {
		t.Errorf("expected prefixed from number, got %q", c.fromWhats)
	}
}

func TestAddressNumber(t *testing.T) {
	if Address("+1") != "whatsapp:+1" || Address("whatsapp:+1") != "whatsapp:+1" {
		t.Error("Address did not normalise prefix")
	}
	if Number("whatsapp:+1") != "+1" || Number("+1") != "+1" {
		t.Error("Number did not strip prefix")
	}
}

func TestMockClient_SendMessage(t *testing.T) {
	mock := NewMockClient()
	if err := mock.SendMessage(context.Background(), "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent := mock.Sent(); len(sent) != 1 || sent[0].Body != "Hello Test" {
		t.Errorf("unexpected messages %v", sent)
	}
}
