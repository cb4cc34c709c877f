package order

type Status string

const (
	StatusCreated           Status = "CREATED"
	StatusPendingAcceptance Status = "PENDING_ACCEPTANCE"
	StatusPaid              Status = "PAID"
	StatusDeclined          Status = "DECLINED"
	StatusCancelled         Status = "CANCELLED"
	StatusPreparing         Status = "PREPARING"
	StatusReady             Status = "READY_FOR_PICKUP"
	StatusPickedUp          Status = "PICKED_UP"
	StatusCompleted         Status = "COMPLETED"
	StatusExpired           Status = "EXPIRED"
)

// validNext is the only definition of which transitions are legal.
var validNext = map[Status]map[Status]bool{
	StatusCreated:           {StatusPendingAcceptance: true, StatusCancelled: true},
	StatusPendingAcceptance: {StatusPaid: true, StatusDeclined: true, StatusCancelled: true},
	StatusPaid:              {StatusPreparing: true},
	StatusPreparing:         {StatusReady: true},
	StatusReady:             {StatusPickedUp: true, StatusExpired: true},
	StatusPickedUp:          {StatusCompleted: true},
	StatusDeclined:          {},
	StatusCancelled:         {},
	StatusCompleted:         {},
	StatusExpired:           {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal statuses are absorbing.
func (s Status) Terminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func AllStatuses() []Status {
	return []Status{
		StatusCreated, StatusPendingAcceptance, StatusPaid, StatusDeclined, StatusCancelled,
		StatusPreparing, StatusReady, StatusPickedUp, StatusCompleted, StatusExpired,
	}
}
