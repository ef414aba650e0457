package broker

import "fmt"

// Well-known broker error codes.
const (
	CodeDuplicateOrderID     = 103
	CodeOrderIDUsed          = 104
	CodePriceTooFar          = 110
	CodeOrderNotFound        = 135
	CodeOrderAlreadyCancel   = 136
	CodeCancelNotAllowed     = 161
	CodeNoSecurityFound      = 200
	CodePermissionDenied     = 201
	CodeOrderCancelled       = 202
	CodeServerError          = 321
	CodeOrderRejected        = 322
	CodeNoHistoricalData     = 354
	CodeInvalidOrder         = 399
	CodeConnectFailed        = 502
	CodeNotConnected         = 504
	CodeConnectivityLost     = 1100
	CodeConnectivityDataLost = 1101
	CodeConnectivityRestored = 1102
	CodeRoutingError         = 10147
	CodeMarginRejected       = 10148
	CodeEtradeOnlyAttr       = 10268
	CodeFirmQuoteOnlyAttr    = 10269
)

// Informational warning range; not treated as failures.
const (
	warningCodeLow  = 2100
	warningCodeHigh = 2199
)

// CodeInfo is the operator-facing translation of a broker error code.
type CodeInfo struct {
	Title   string
	Message string
	Hint    string
}

var codeMessages = map[int]CodeInfo{
	CodeDuplicateOrderID: {
		Title:   "Duplicate Order ID",
		Message: "This order ID has already been used.",
		Hint:    "Reconnect to the gateway to get a fresh order ID sequence.",
	},
	CodeOrderIDUsed: {
		Title:   "Order ID Already Used",
		Message: "This order ID was previously submitted.",
		Hint:    "Reconnect to the gateway to get a fresh order ID sequence.",
	},
	CodePriceTooFar: {
		Title:   "Price Too Far From Market",
		Message: "The order price is too far from the current market price.",
		Hint:    "Adjust your entry price to be closer to the current market.",
	},
	CodeOrderNotFound: {
		Title:   "Order Not Found",
		Message: "Cannot find order with the specified ID.",
		Hint:    "The parent order may have been rejected. Check for other error messages.",
	},
	CodeOrderAlreadyCancel: {
		Title:   "Order Already Cancelled",
		Message: "This order has already been cancelled.",
		Hint:    "Refresh your order list to see current status.",
	},
	CodeCancelNotAllowed: {
		Title:   "Cannot Cancel Order",
		Message: "The order is not in a cancellable state.",
		Hint:    "The order may have already been filled or cancelled.",
	},
	CodeNoSecurityFound: {
		Title:   "Security Not Found",
		Message: "No security definition found for this symbol.",
		Hint:    "Check that the symbol is correct and includes the right exchange.",
	},
	CodePermissionDenied: {
		Title:   "Permission Denied",
		Message: "API not enabled or account permissions insufficient.",
		Hint:    "Enable API access in the gateway settings, or check account permissions.",
	},
	CodeOrderCancelled: {
		Title:   "Order Cancelled",
		Message: "The order was cancelled.",
		Hint:    "Order cancellation was processed successfully.",
	},
	CodeServerError: {
		Title:   "Server Error",
		Message: "Broker server encountered an error.",
		Hint:    "Wait a moment and try again. If persistent, check broker system status.",
	},
	CodeOrderRejected: {
		Title:   "Order Rejected",
		Message: "The order was rejected by the broker.",
		Hint:    "Check the error details for specific rejection reason.",
	},
	CodeNoHistoricalData: {
		Title:   "No Historical Data Permissions",
		Message: "You don't have permissions for historical data.",
		Hint:    "Subscribe to market data or use delayed data settings.",
	},
	CodeInvalidOrder: {
		Title:   "Invalid Order",
		Message: "Order parameters are invalid or not allowed.",
		Hint:    "Check order type, quantity, price levels, and account settings.",
	},
	CodeConnectFailed: {
		Title:   "Connection Failed",
		Message: "Could not connect to the broker gateway.",
		Hint:    "Ensure the gateway is running and API access is enabled on the correct port.",
	},
	CodeNotConnected: {
		Title:   "Not Connected",
		Message: "No connection to the broker gateway.",
		Hint:    "Connect to the gateway before issuing requests.",
	},
	CodeConnectivityLost: {
		Title:   "Connectivity Problem",
		Message: "Connection to broker servers was lost.",
		Hint:    "Check your internet connection. Reconnection will be attempted automatically.",
	},
	CodeConnectivityDataLost: {
		Title:   "Connectivity Restored",
		Message: "Connection restored but some data may have been lost.",
		Hint:    "Refresh your orders and positions to ensure you have current data.",
	},
	CodeConnectivityRestored: {
		Title:   "Connectivity Restored",
		Message: "Connection restored with data maintained.",
		Hint:    "You may continue trading normally.",
	},
	CodeRoutingError: {
		Title:   "Product Routing Error",
		Message: "Product not available or cannot be routed.",
		Hint:    "Canadian ETFs may not be available in paper trading. Try a different symbol or switch to live (with caution).",
	},
	CodeMarginRejected: {
		Title:   "Margin Rejected",
		Message: "Order rejected due to margin requirements.",
		Hint:    "Reduce position size or ensure sufficient margin in your account.",
	},
	CodeEtradeOnlyAttr: {
		Title:   "Unsupported Order Attribute",
		Message: "The 'EtradeOnly' order attribute is not supported.",
		Hint:    "This should be handled automatically. If you see this error, please report it.",
	},
	CodeFirmQuoteOnlyAttr: {
		Title:   "Unsupported Order Attribute",
		Message: "The 'FirmQuoteOnly' order attribute is not supported.",
		Hint:    "This should be handled automatically. If you see this error, please report it.",
	},
}

// FriendlyMessage translates an error code into operator-facing text. Unknown
// codes get a generic fallback rather than failing translation.
func FriendlyMessage(code int, defaultMsg string) CodeInfo {
	if info, ok := codeMessages[code]; ok {
		return info
	}
	msg := defaultMsg
	if msg == "" {
		msg = fmt.Sprintf("Error code %d", code)
	}
	return CodeInfo{
		Title:   "Broker Error",
		Message: msg,
		Hint:    "Check gateway logs for more details.",
	}
}

// IsWarningCode reports whether a code is informational only.
func IsWarningCode(code int) bool {
	return code >= warningCodeLow && code <= warningCodeHigh
}

// IsOrderRejection reports whether a code indicates the broker refused an
// order outright.
func IsOrderRejection(code int) bool {
	switch code {
	case CodePermissionDenied, CodeOrderRejected, CodeInvalidOrder,
		CodeMarginRejected, CodeRoutingError, CodeNoSecurityFound, CodePriceTooFar:
		return true
	}
	return false
}

// IsConnectivityCode reports whether a code concerns the transport rather than
// a specific request.
func IsConnectivityCode(code int) bool {
	switch code {
	case CodeConnectFailed, CodeNotConnected, CodeConnectivityLost,
		CodeConnectivityDataLost, CodeConnectivityRestored:
		return true
	}
	return false
}
