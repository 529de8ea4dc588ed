package checkout

import "testing"

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		minor    int64
		currency string
		want     string
	}{
		"two decimals":   {minor: 1050, currency: "EUR", want: "10.50 EUR"},
		"lower case":     {minor: 5, currency: "usd", want: "0.05 USD"},
		"zero decimals":  {minor: 1200, currency: "JPY", want: "1200 JPY"},
		"three decimals": {minor: 12345, currency: "KWD", want: "12.345 KWD"},
		"negative":       {minor: -250, currency: "GBP", want: "-2.50 GBP"},
		"no currency":    {minor: 199, want: "1.99"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := FormatAmount(tc.minor, tc.currency); got != tc.want {
				t.Fatalf("FormatAmount(%d, %q) = %q, want %q", tc.minor, tc.currency, got, tc.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		value    string
		currency string
		want     int64
		wantErr  bool
	}{
		"whole":          {value: "10", currency: "EUR", want: 1000},
		"fraction":       {value: "10.5", currency: "EUR", want: 1050},
		"zero exponent":  {value: "1200", currency: "JPY", want: 1200},
		"three decimals": {value: " 1.234 ", currency: "BHD", want: 1234},
		"too precise":    {value: "10.505", currency: "EUR", wantErr: true},
		"not a number":   {value: "ten", currency: "EUR", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAmount(tc.value, tc.currency)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ParseAmount(%q) = %d, want %d", tc.value, got, tc.want)
			}
		})
	}
}

func TestOrderFormattedTotal(t *testing.T) {
	t.Parallel()

	total := int64(1050)
	order := &Order{CurrencyCode: "EUR", TotalOrderAmount: &total}
	if got := order.FormattedTotal(); got != "10.50 EUR" {
		t.Fatalf("unexpected total %q", got)
	}

	var missing *Order
	if got := missing.FormattedTotal(); got != "" {
		t.Fatalf("expected empty total, got %q", got)
	}
}
