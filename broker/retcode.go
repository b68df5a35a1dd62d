package broker

import "fmt"

// Retcode is the trade server return code of an order submission.
type Retcode uint32

const (
	RetcodeRequote       Retcode = 10004
	RetcodeReject        Retcode = 10006
	RetcodeCancel        Retcode = 10007
	RetcodePlaced        Retcode = 10008
	RetcodeDone          Retcode = 10009
	RetcodeDonePartial   Retcode = 10010
	RetcodeError         Retcode = 10011
	RetcodeTimeout       Retcode = 10012
	RetcodeInvalid       Retcode = 10013
	RetcodeInvalidVolume Retcode = 10014
	RetcodeInvalidPrice  Retcode = 10015
	RetcodeInvalidStops  Retcode = 10016
	RetcodeTradeDisabled Retcode = 10017
	RetcodeMarketClosed  Retcode = 10018
	RetcodeNoMoney       Retcode = 10019
	RetcodePriceChanged  Retcode = 10020
	RetcodePriceOff      Retcode = 10021
)

var retcodeNames = map[Retcode]string{
	RetcodeRequote:       "REQUOTE",
	RetcodeReject:        "REJECT",
	RetcodeCancel:        "CANCEL",
	RetcodePlaced:        "PLACED",
	RetcodeDone:          "DONE",
	RetcodeDonePartial:   "DONE_PARTIAL",
	RetcodeError:         "ERROR",
	RetcodeTimeout:       "TIMEOUT",
	RetcodeInvalid:       "INVALID",
	RetcodeInvalidVolume: "INVALID_VOLUME",
	RetcodeInvalidPrice:  "INVALID_PRICE",
	RetcodeInvalidStops:  "INVALID_STOPS",
	RetcodeTradeDisabled: "TRADE_DISABLED",
	RetcodeMarketClosed:  "MARKET_CLOSED",
	RetcodeNoMoney:       "NO_MONEY",
	RetcodePriceChanged:  "PRICE_CHANGED",
	RetcodePriceOff:      "PRICE_OFF",
}

func (r Retcode) String() string {
	if s, ok := retcodeNames[r]; ok {
		return s
	}
	return fmt.Sprintf("RETCODE_%d", uint32(r))
}

// Done reports a filled order.
func (r Retcode) Done() bool { return r == RetcodeDone }

// Transient reports codes that are worth retrying with a fresh price.
func (r Retcode) Transient() bool {
	return r == RetcodeRequote || r == RetcodePriceOff
}
