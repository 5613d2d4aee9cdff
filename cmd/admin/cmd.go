package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/shrimpsizemoose/homeroom/internal/access"
	"github.com/shrimpsizemoose/homeroom/internal/homework"
	"github.com/shrimpsizemoose/homeroom/internal/models"
	"github.com/shrimpsizemoose/homeroom/internal/roster"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	roster   *roster.Service
	homework *homework.Service
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -first NAME -last NAME [-role teacher|student] [-phone PHONE] - create an account, the password is prompted")
	fmt.Fprintln(cli.out, "  refanout -homework ID -as TEACHER_ID - create status rows a homework's recipients are missing")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserCmd.SetOutput(cli.out)
	email := addUserCmd.String("email", "", "Login email")
	first := addUserCmd.String("first", "", "First name")
	last := addUserCmd.String("last", "", "Last name")
	phone := addUserCmd.String("phone", "", "Phone number")
	role := addUserCmd.String("role", string(models.RoleTeacher), "teacher or student")

	refanoutCmd := flag.NewFlagSet("refanout", flag.ContinueOnError)
	refanoutCmd.SetOutput(cli.out)
	homeworkID := refanoutCmd.Int64("homework", 0, "Homework id")
	asTeacher := refanoutCmd.Int64("as", 0, "Id of the teacher running the command")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *email == "" || *first == "" || *last == "" {
			addUserCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(roster.NewUser{
			Email:     *email,
			Password:  string(pwd),
			FirstName: *first,
			LastName:  *last,
			Phone:     *phone,
			Role:      models.Role(*role),
		})
	case "refanout":
		if err := refanoutCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *homeworkID <= 0 || *asTeacher <= 0 {
			refanoutCmd.Usage()
			return errHelp
		}
		return cli.refanout(*homeworkID, *asTeacher)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) addUser(in roster.NewUser) error {
	user, err := cli.roster.Register(context.Background(), in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Created %s %d (%s)\n", user.Role, user.ID, user.Email)
	return nil
}

func (cli *commandLine) refanout(homeworkID, teacherID int64) error {
	ctx := context.Background()
	teacher, err := cli.roster.Whois(ctx, teacherID)
	if err != nil {
		return err
	}

	report, err := cli.homework.Refanout(ctx, access.Actor{UserID: teacher.ID, Role: teacher.Role}, homeworkID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Homework %d: %d recipients, %d created, %d existing\n",
		homeworkID, report.Recipients, report.Created, report.Existing)
	if warning := report.Warning(); warning != nil {
		return warning
	}
	return nil
}
