package conversation

import "fmt"

// Directives are short instructions handed to the response generator; the
// generator owns the wording, the engine owns the outcome. Fixed replies
// below bypass the generator entirely.

const (
	directiveConfirmed = "The patient confirmed they will attend the appointment. Acknowledge briefly and close the conversation."

	directiveCanceled = "The patient canceled the appointment and it has been removed. Confirm the cancellation and close the conversation."

	directiveAskNewDate = "The patient wants to reschedule. Ask only which date they would like."

	directiveAskClarify = "The patient's intent was not understood. Politely ask for more details."

	directiveNoAppointment = "No appointment is on record for this patient. Let them know and suggest contacting the office to book one."

	directiveGiveUpDate = "The patient's date could not be understood after several attempts. Apologize and ask them to contact the office directly."

	directiveAltDeclined = "The patient declined the offered alternative slot. Confirm that the appointment was left unchanged and close the conversation."

	directiveExchangeAborted = "The patient aborted the current operation. Confirm that nothing was changed."
)

func directiveRescheduled(date, timeOfDay string) string {
	return fmt.Sprintf("The appointment was rescheduled to %s at %s. Thank the patient and close the conversation.", date, timeOfDay)
}

func directiveOfferSlot(date, timeOfDay string) string {
	return fmt.Sprintf("The requested slot is occupied. The next available slot on %s is %s. Ask whether the patient wants that slot instead.", date, timeOfDay)
}

func directiveDayFull(date string) string {
	return fmt.Sprintf("There are no available slots on %s. Ask the patient to choose another date by contacting the office.", date)
}

// Fixed replies, sent verbatim (the original bot also hard-coded these).
const (
	invalidDateReply  = "Data inválida, por favor tente novamente."
	slotBusyReply     = "Esse horário está sendo reservado neste momento. Pode tentar novamente?"
	storeTroubleReply = "Desculpe, estou com um problema técnico no momento. Por favor, tente novamente em instantes."
)
