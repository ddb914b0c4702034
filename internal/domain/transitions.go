package domain

// Operation names a booking lifecycle operation.
type Operation string

const (
	OpCreate          Operation = "create"
	OpRequestSupplier Operation = "request_supplier"
	OpAccept          Operation = "accept"
	OpReject          Operation = "reject"
	OpAssignOperator  Operation = "assign_operator"
	OpArrive          Operation = "arrive"
	OpStartWork       Operation = "start_work"
	OpReissueOTP      Operation = "reissue_otp"
	OpComplete        Operation = "complete"
	OpRecordPayment   Operation = "record_payment"
	OpCancel          Operation = "cancel"
	OpExpire          Operation = "expire"
)

// AllowedTransitions is the lifecycle graph. A status never appears as a target
// once left, except Arrived looping on itself for OTP bookkeeping.
var AllowedTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusSearching: {
		BookingStatusPendingConfirmation, BookingStatusAwaitingOperator, BookingStatusConfirmed,
		BookingStatusCancelled, BookingStatusExpired,
	},
	BookingStatusPendingConfirmation: {
		BookingStatusAwaitingOperator, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired,
	},
	BookingStatusAwaitingOperator: {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired},
	BookingStatusConfirmed:        {BookingStatusArrived, BookingStatusCancelled, BookingStatusExpired},
	BookingStatusArrived: {
		BookingStatusArrived, BookingStatusInProcess, BookingStatusCancelled, BookingStatusExpired,
	},
	BookingStatusInProcess:      {BookingStatusPendingPayment, BookingStatusCompleted, BookingStatusExpired},
	BookingStatusPendingPayment: {BookingStatusCompleted, BookingStatusExpired},
}

var allowedTransitionSet = buildTransitionSet(AllowedTransitions)

func buildTransitionSet(transitions map[BookingStatus][]BookingStatus) map[BookingStatus]map[BookingStatus]struct{} {
	set := make(map[BookingStatus]map[BookingStatus]struct{}, len(transitions))
	for from, tos := range transitions {
		next := make(map[BookingStatus]struct{}, len(tos))
		for _, to := range tos {
			next[to] = struct{}{}
		}
		set[from] = next
	}
	return set
}

// CanTransition checks that from -> to is an edge of the lifecycle graph.
func CanTransition(from, to BookingStatus) bool {
	next, ok := allowedTransitionSet[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// Edge describes which statuses and roles an operation accepts.
type Edge struct {
	From  []BookingStatus
	Roles []Role
}

func (e Edge) AllowsStatus(s BookingStatus) bool {
	for _, from := range e.From {
		if from == s {
			return true
		}
	}
	return false
}

func (e Edge) AllowsRole(r Role) bool {
	for _, role := range e.Roles {
		if role == r {
			return true
		}
	}
	return false
}

var preWork = []BookingStatus{
	BookingStatusSearching, BookingStatusPendingConfirmation, BookingStatusAwaitingOperator,
	BookingStatusConfirmed, BookingStatusArrived,
}

var nonTerminal = []BookingStatus{
	BookingStatusSearching, BookingStatusPendingConfirmation, BookingStatusAwaitingOperator,
	BookingStatusConfirmed, BookingStatusArrived, BookingStatusInProcess, BookingStatusPendingPayment,
}

// Edges is the operation table. Identity checks (is this the booking's farmer,
// supplier, operator) happen in the state machine.
var Edges = map[Operation]Edge{
	OpRequestSupplier: {From: []BookingStatus{BookingStatusSearching}, Roles: []Role{RoleFarmer, RoleAdmin}},
	OpAccept: {
		From:  []BookingStatus{BookingStatusSearching, BookingStatusPendingConfirmation},
		Roles: []Role{RoleSupplier},
	},
	OpReject:         {From: []BookingStatus{BookingStatusPendingConfirmation}, Roles: []Role{RoleSupplier}},
	OpAssignOperator: {From: []BookingStatus{BookingStatusAwaitingOperator}, Roles: []Role{RoleSupplier, RoleAdmin}},
	OpArrive:         {From: []BookingStatus{BookingStatusConfirmed}, Roles: []Role{RoleSupplier, RoleOperator}},
	OpStartWork:      {From: []BookingStatus{BookingStatusArrived}, Roles: []Role{RoleSupplier, RoleOperator}},
	OpReissueOTP: {
		From:  []BookingStatus{BookingStatusArrived},
		Roles: []Role{RoleSupplier, RoleOperator, RoleAdmin},
	},
	OpComplete:      {From: []BookingStatus{BookingStatusInProcess}, Roles: []Role{RoleSupplier, RoleSystem}},
	OpRecordPayment: {From: []BookingStatus{BookingStatusPendingPayment}, Roles: []Role{RoleSupplier, RoleAdmin}},
	OpCancel:        {From: preWork, Roles: []Role{RoleFarmer, RoleSupplier, RoleAdmin}},
	OpExpire:        {From: nonTerminal, Roles: []Role{RoleSystem, RoleAdmin}},
}
