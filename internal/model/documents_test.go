package model

import (
	"math"
	"testing"
)

func TestCanonicalKey(t *testing.T) {
	if got := CanonicalKey("u1", "aapl"); got != "u1_AAPL" {
		t.Errorf("unexpected key: %s", got)
	}
}

func TestPosition_IsCanonical(t *testing.T) {
	p := Position{DocID: "u1_AAPL", OwnerID: "u1"}
	if !p.IsCanonical() {
		t.Error("expected canonical")
	}
	p = Position{DocID: "8f14e45f-auto", OwnerID: "u1"}
	if p.IsCanonical() {
		t.Error("expected legacy auto-ID row")
	}
}

func TestPosition_Valid(t *testing.T) {
	good := Position{DocID: "u1_AAPL", OwnerID: "u1", Symbol: "AAPL", Quantity: 1}
	if !good.Valid() {
		t.Error("expected valid position")
	}
	for _, p := range []Position{
		{OwnerID: "", Symbol: "AAPL", Quantity: 1},
		{OwnerID: "u1", Symbol: "  ", Quantity: 1},
		{OwnerID: "u1", Symbol: "AAPL", Quantity: math.NaN()},
		{OwnerID: "u1", Symbol: "AAPL", Quantity: 1, CostBasisPerShare: math.Inf(1)},
	} {
		if p.Valid() {
			t.Errorf("expected invalid: %+v", p)
		}
	}
}

func TestTransaction_IsSell(t *testing.T) {
	if (&Transaction{Type: "SELL"}).IsSell() != true {
		t.Error("sell is case-insensitive")
	}
	// Rows written before the type field became mandatory default to buy.
	if (&Transaction{Type: ""}).IsSell() {
		t.Error("blank type must count as buy")
	}
}

func TestTransaction_Valid(t *testing.T) {
	good := Transaction{OwnerID: "u1", Symbol: "AAPL", Type: TxBuy, Quantity: 1, PricePerShare: 10}
	if !good.Valid() {
		t.Error("expected valid transaction")
	}
	for _, tx := range []Transaction{
		{OwnerID: "u1", Symbol: "AAPL", Quantity: 0},
		{OwnerID: "u1", Symbol: "AAPL", Quantity: -1},
		{OwnerID: "u1", Symbol: "AAPL", Quantity: 1, PricePerShare: -5},
		{OwnerID: "u1", Symbol: "AAPL", Quantity: 1, PricePerShare: math.NaN()},
	} {
		if tx.Valid() {
			t.Errorf("expected invalid: %+v", tx)
		}
	}
}
